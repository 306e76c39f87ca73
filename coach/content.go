package coach

import "tomappdev/players"

var greetings = map[Role]string{
	Student: "Hi! I'm your cricket coaching AI assistant. I can help you improve your skills, answer questions about drills, and give you tips. What would you like to know?",
	Parent:  "Hello! I'm the ToMapp cricket coaching AI. I can help you understand your child's progress, strengths, and areas for improvement. What would you like to know?",
	Coach:   "Welcome Coach! I'm here to help you analyze player performance, suggest training focus areas, and provide coaching strategies. How can I assist you today?",
}

var suggestions = map[Role][]string{
	Student: {
		"What should I improve?",
		"Give me today's tip",
		"How can I improve my bowling?",
		"What drills should I practice?",
	},
	Parent: {
		"How is my child performing?",
		"What are the strengths?",
		"What needs improvement?",
		"What should we focus on?",
	},
	Coach: {
		"What are the skill gaps?",
		"What should be the focus?",
		"Create a practice plan",
		"Analyze the performance",
	},
}

var greetingHints = map[Role]string{
	Student: "Tell me what skills you want to improve or ask for training tips.",
	Parent:  "I can help you understand your child's progress and training focus.",
	Coach:   "Let me help you analyze performance and create training plans.",
}

var improvementTips = map[players.Skill]string{
	players.Batting:  "Focus on timing and throw-down drills. Practice against different bowling styles and work on footwork.",
	players.Bowling:  "Maintain a consistent run-up and work on yorkers and short balls. Practice variations like spin.",
	players.Fielding: "Practice catching and throwing drills daily. Work on anticipation and quick movements.",
	players.Fitness:  "Increase cardio training to improve stamina. Do interval training and functional fitness exercises.",
}

var dailyTips = []string{
	"Start your practice with a 10-minute warm-up to prevent injuries.",
	"Stay hydrated throughout the day - drink 8-10 glasses of water.",
	"Practice for at least 1-2 hours focusing on weak areas.",
	"Record and review your batting videos to identify mistakes.",
	"Practice with a partner to simulate match conditions.",
	"Get 8 hours of sleep for better recovery and focus.",
	"Do strength training at least 3 times a week.",
	"Practice meditation for 10 minutes to improve focus.",
}

const (
	thanksReply = "You're welcome! Feel free to ask me anything else about cricket training and improvement."

	studentFallback = "That's a great question! Remember, consistent practice and focus on your weak areas will help you improve. What specific area would you like to work on?"
	parentFallback  = "That's important to know. I recommend staying in touch with the coach for detailed progress updates and setting realistic improvement targets."
	coachFallback   = "Good point. Consider implementing skill-specific training modules and regular performance assessments to track player development."
	globalFallback  = "I'm here to help! Could you ask more specifically about skills, training, or performance? I'll provide the best guidance based on your role."
)

var fallbacks = map[Role]string{
	Student: studentFallback,
	Parent:  parentFallback,
	Coach:   coachFallback,
}

// Greeting is the opening assistant message for a fresh conversation.
func Greeting(role Role) string {
	if g, ok := greetings[role]; ok {
		return g
	}
	return greetings[Student]
}

func Suggestions(role Role) []string {
	list, ok := suggestions[role]
	if !ok {
		list = suggestions[Student]
	}
	return append([]string(nil), list...)
}

// DailyTips returns a copy of the tip table used for tip requests.
func DailyTips() []string {
	return append([]string(nil), dailyTips...)
}
