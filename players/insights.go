package players

type InsightType string

const (
	InsightStrength InsightType = "strength"
	InsightWeakness InsightType = "weakness"
)

type Insight struct {
	Type       InsightType `json:"type"`
	Skill      string      `json:"skill"`
	Suggestion string      `json:"suggestion"`
}

var weaknessSuggestions = map[Skill]string{
	Batting:  "Focus on timing and throw-down drills. Practice against different bowling styles daily.",
	Bowling:  "Work on bowling accuracy and speed. Practice yorkers and slower deliveries.",
	Fielding: "Practice catching and throwing drills daily. Focus on footwork and positioning.",
	Fitness:  "Increase cardio training to improve stamina. Include strength training 3-4 times per week.",
}

var strengthSuggestions = map[Skill]string{
	Batting:  "Your batting is strong! Focus on maintaining consistency and adapting to different conditions.",
	Bowling:  "Excellent bowling skills! Keep perfecting your variations and maintain your performance.",
	Fielding: "Great fielding ability! Continue to stay sharp and help teammates improve.",
	Fitness:  "Excellent fitness level! Maintain your training routine and focus on nutrition.",
}

// Insights returns one entry per skill that is a strength or a weakness.
func (s *Statistics) Insights() []Insight {
	var out []Insight
	for _, skill := range Skills {
		score := s.scores[skill]
		switch {
		case score < weaknessBelow:
			out = append(out, Insight{Type: InsightWeakness, Skill: skill.Title(), Suggestion: weaknessSuggestions[skill]})
		case score >= strengthFrom:
			out = append(out, Insight{Type: InsightStrength, Skill: skill.Title(), Suggestion: strengthSuggestions[skill]})
		}
	}
	return out
}

func (s *Statistics) ImprovementAreas() []string {
	return titles(s.Weaknesses())
}

func (s *Statistics) StrengthAreas() []string {
	return titles(s.Strengths())
}

type WeeklyAverage struct {
	Week    string  `json:"week"`
	Average float64 `json:"average"`
}

// MonthlyProgress is simulated; there is no stored history to derive it from.
func MonthlyProgress() []WeeklyAverage {
	return []WeeklyAverage{
		{Week: "Week 1", Average: 5.5},
		{Week: "Week 2", Average: 5.8},
		{Week: "Week 3", Average: 6.0},
		{Week: "Week 4", Average: 6.2},
	}
}

func titles(skills []Skill) []string {
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		out = append(out, skill.Title())
	}
	return out
}
