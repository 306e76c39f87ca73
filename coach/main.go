package coach

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"tomappdev/players"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Role string

const (
	Student Role = "student"
	Parent  Role = "parent"
	Coach   Role = "coach"
)

func (r Role) Title() string {
	return cases.Title(language.English).String(string(r))
}

// Roles lists the selectable roles in menu order.
var Roles = []Role{Student, Parent, Coach}

// ParseRole maps a header or command value to a Role. An empty value means Student.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case "", Student:
		return Student, true
	case Parent:
		return Parent, true
	case Coach:
		return Coach, true
	}
	return Role(value), false
}

// Entropy picks tip indexes. *rand.Rand from math/rand/v2 satisfies it.
type Entropy interface {
	IntN(n int) int
}

type globalEntropy struct{}

func (globalEntropy) IntN(n int) int { return rand.IntN(n) }

// LockedEntropy serialises access to a source that is not safe for concurrent use.
type LockedEntropy struct {
	mu     sync.Mutex
	source Entropy
}

func NewLockedEntropy(source Entropy) *LockedEntropy {
	return &LockedEntropy{source: source}
}

func (l *LockedEntropy) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.source.IntN(n)
}

type rule struct {
	keywords []string
	respond  func(g *Generator, stats *players.Statistics) string
}

func (r rule) matches(message string) bool {
	for _, keyword := range r.keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

type Generator struct {
	entropy Entropy
}

// NewGenerator returns a generator drawing tips from entropy, or from the
// process-wide source when entropy is nil.
func NewGenerator(entropy Entropy) *Generator {
	if entropy == nil {
		entropy = globalEntropy{}
	}
	return &Generator{entropy: entropy}
}

// Generate answers the latest user message for role. It never returns an
// empty string. A nil stats falls back to the sample player.
func (g *Generator) Generate(role Role, message string, stats *players.Statistics) string {
	if stats == nil {
		stats = players.Sample()
	}
	lower := strings.ToLower(message)

	common := []rule{
		{keywords: []string{"hi", "hello", "hey"}, respond: func(*Generator, *players.Statistics) string {
			hint, ok := greetingHints[role]
			if !ok {
				hint = greetingHints[Coach]
			}
			return "Hi! I'm here to help. " + hint
		}},
		{keywords: []string{"thanks", "thank you"}, respond: func(*Generator, *players.Statistics) string {
			return thanksReply
		}},
	}
	for _, r := range common {
		if r.matches(lower) {
			return r.respond(g, stats)
		}
	}

	rules, ok := roleRules[role]
	if !ok {
		return globalFallback
	}
	for _, r := range rules {
		if r.matches(lower) {
			return r.respond(g, stats)
		}
	}
	return fallbacks[role]
}

func (g *Generator) tip() string {
	return dailyTips[g.entropy.IntN(len(dailyTips))]
}

var roleRules = map[Role][]rule{
	Student: studentRules,
	Parent:  parentRules,
	Coach:   coachRules,
}

var studentRules = []rule{
	{keywords: []string{"improve", "weak", "need work"}, respond: func(_ *Generator, s *players.Statistics) string {
		weaknesses := s.Weaknesses()
		if len(weaknesses) == 0 {
			return fmt.Sprintf("Great job! Your skills are well balanced. Keep working on maintaining your %s.",
				joinOr(s.Strengths(), " and ", "overall game"))
		}
		tips := make([]string, 0, len(weaknesses))
		for _, skill := range weaknesses {
			tips = append(tips, improvementTips[skill])
		}
		return fmt.Sprintf("You need to focus on: %s. %s", join(weaknesses, ", "), strings.Join(tips, " "))
	}},
	{keywords: []string{"tip", "advice", "suggestion"}, respond: func(g *Generator, _ *players.Statistics) string {
		return "Here's a tip for today: " + g.tip()
	}},
	{keywords: []string{"strength", "good"}, respond: func(_ *Generator, s *players.Statistics) string {
		strengths := s.Strengths()
		if len(strengths) == 0 {
			return "Keep practicing consistently. Your skills will improve with dedication."
		}
		return fmt.Sprintf("Your strengths are: %s. These are great areas - keep working on them!", join(strengths, ", "))
	}},
	{keywords: []string{"drill", "practice"}, respond: func(_ *Generator, s *players.Statistics) string {
		weaknesses := s.Weaknesses()
		if len(weaknesses) == 0 {
			return "Focus on practicing against different bowling styles and working on variations to take your game to the next level."
		}
		skill := weaknesses[0]
		return fmt.Sprintf("For your %s practice: %s Practice for 1-2 hours daily and track your progress.", skill, improvementTips[skill])
	}},
	{keywords: []string{"score", "performance", "how am i"}, respond: func(_ *Generator, s *players.Statistics) string {
		parts := make([]string, 0, len(players.Skills))
		for _, skill := range players.Skills {
			parts = append(parts, fmt.Sprintf("%s %d/%d", skill.Title(), s.Score(skill), players.MaxScore))
		}
		return fmt.Sprintf("Your current scores: %s. Keep practicing and you'll improve!", strings.Join(parts, ", "))
	}},
}

var parentRules = []rule{
	{keywords: []string{"perform", "how is", "progress"}, respond: func(_ *Generator, s *players.Statistics) string {
		return fmt.Sprintf("%s is doing well overall. Strengths: %s, Areas to improve: %s. I recommend continuing current training.",
			s.DisplayName, joinOr(s.Strengths(), ", ", "balanced"), joinOr(s.Weaknesses(), ", ", "all well balanced"))
	}},
	{keywords: []string{"concern", "worry"}, respond: func(_ *Generator, s *players.Statistics) string {
		weaknesses := s.Weaknesses()
		if len(weaknesses) == 0 {
			return fmt.Sprintf("No concerns! %s is performing well across all areas. Keep supporting their training.", s.DisplayName)
		}
		return fmt.Sprintf("Focus areas: %s. Encourage daily practice and ensure proper recovery. These will improve with consistent effort.", join(weaknesses, ", "))
	}},
	{keywords: []string{"strength"}, respond: func(_ *Generator, s *players.Statistics) string {
		return fmt.Sprintf("%s's strengths are: %s. Encourage them to continue building on these while improving other areas.",
			s.DisplayName, joinOr(s.Strengths(), ", ", "developing well"))
	}},
	{keywords: []string{"focus", "training"}, respond: func(_ *Generator, s *players.Statistics) string {
		return fmt.Sprintf("Training should focus on: %s. Ensure the coach includes skill-specific drills in practice sessions.",
			joinOr(s.Weaknesses(), " and ", "consistency and advanced techniques"))
	}},
	{keywords: []string{"what should"}, respond: func(_ *Generator, s *players.Statistics) string {
		return fmt.Sprintf("You should: 1) Ensure %s practices 1-2 hours daily 2) Support with proper nutrition and hydration 3) Encourage rest and recovery 4) Attend coaching sessions regularly.", s.DisplayName)
	}},
}

var coachRules = []rule{
	{keywords: []string{"gap", "skill"}, respond: func(_ *Generator, s *players.Statistics) string {
		weaknesses := s.Weaknesses()
		if len(weaknesses) == 0 {
			return "All skills are well developed. Focus on advanced techniques and competitive match strategies."
		}
		return fmt.Sprintf("Key gaps to address: %s. Allocate specific drill time for each weakness in weekly training schedules.", join(weaknesses, ", "))
	}},
	{keywords: []string{"plan", "focus"}, respond: func(_ *Generator, s *players.Statistics) string {
		return fmt.Sprintf("Weekly Plan: 40%% on %s, 30%% on strengthening %s, 30%% on fitness and strategy. Include match simulations.",
			firstOr(s.Weaknesses(), "all-round skills"), firstOr(s.Strengths(), "strong areas"))
	}},
	{keywords: []string{"analyze", "performance"}, respond: func(_ *Generator, s *players.Statistics) string {
		var b strings.Builder
		fmt.Fprintf(&b, "Analysis: %s shows promise. ", s.DisplayName)
		if strengths := s.Strengths(); len(strengths) > 0 {
			fmt.Fprintf(&b, "Strengths in %s. ", join(strengths, " and "))
		}
		fmt.Fprintf(&b, "Focus coaching on %s. Recommend intensive drills and regular performance reviews.",
			joinOr(s.Weaknesses(), " and ", "overall consistency"))
		return b.String()
	}},
	{keywords: []string{"session", "practice"}, respond: func(_ *Generator, s *players.Statistics) string {
		return fmt.Sprintf("Session structure: 15min warm-up, 40min focused drills on %s, 20min match simulation, 10min cool-down and review. Track improvements weekly.",
			firstOr(s.Weaknesses(), "technique"))
	}},
	{keywords: []string{"strategy", "improve"}, respond: func(*Generator, *players.Statistics) string {
		return "Strategic approach: 1) Identify technical gaps 2) Create targeted drill plans 3) Monitor weekly progress 4) Adjust intensity based on performance 5) Build match-ready confidence. Regular video reviews help."
	}},
}

func join(skills []players.Skill, sep string) string {
	names := make([]string, 0, len(skills))
	for _, skill := range skills {
		names = append(names, string(skill))
	}
	return strings.Join(names, sep)
}

func joinOr(skills []players.Skill, sep, placeholder string) string {
	if len(skills) == 0 {
		return placeholder
	}
	return join(skills, sep)
}

func firstOr(skills []players.Skill, placeholder string) string {
	if len(skills) == 0 {
		return placeholder
	}
	return string(skills[0])
}
