package players

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Skill string

const (
	Batting  Skill = "batting"
	Bowling  Skill = "bowling"
	Fielding Skill = "fielding"
	Fitness  Skill = "fitness"
)

// Skills lists every tracked skill in display order.
var Skills = []Skill{Batting, Bowling, Fielding, Fitness}

const (
	MinScore = 0
	MaxScore = 10

	weaknessBelow = 6
	strengthFrom  = 7
)

// Title is built per call since a Caser is not safe for concurrent use.
func (s Skill) Title() string {
	return cases.Title(language.English).String(string(s))
}

func (s Skill) Valid() bool {
	switch s {
	case Batting, Bowling, Fielding, Fitness:
		return true
	}
	return false
}

type Statistics struct {
	Name        string
	DisplayName string
	Age         int
	scores      map[Skill]int
}

type StatisticsProps struct {
	Name        string
	DisplayName string
	Age         int
	Scores      map[Skill]int
}

// New validates the scores and returns an immutable copy. Skills missing from
// Scores count as zero.
func New(args StatisticsProps) (*Statistics, error) {
	scores := make(map[Skill]int, len(Skills))
	for skill, score := range args.Scores {
		if !skill.Valid() {
			return nil, fmt.Errorf("unknown skill %q", skill)
		}
		if score < MinScore || score > MaxScore {
			return nil, fmt.Errorf("score for %s out of range: %d", skill, score)
		}
		scores[skill] = score
	}

	displayName := args.DisplayName
	if displayName == "" {
		displayName = args.Name
	}

	return &Statistics{
		Name:        args.Name,
		DisplayName: displayName,
		Age:         args.Age,
		scores:      scores,
	}, nil
}

// Sample is the built-in demo player.
func Sample() *Statistics {
	stats, _ := New(StatisticsProps{
		Name:        "Arjun Kumar",
		DisplayName: "Arjun",
		Age:         16,
		Scores: map[Skill]int{
			Batting:  6,
			Bowling:  8,
			Fielding: 5,
			Fitness:  4,
		},
	})
	return stats
}

func (s *Statistics) Score(skill Skill) int {
	return s.scores[skill]
}

func (s *Statistics) Scores() map[Skill]int {
	out := make(map[Skill]int, len(Skills))
	for _, skill := range Skills {
		out[skill] = s.scores[skill]
	}
	return out
}

// Weaknesses returns skills scoring below 6, in display order.
func (s *Statistics) Weaknesses() []Skill {
	var out []Skill
	for _, skill := range Skills {
		if s.scores[skill] < weaknessBelow {
			out = append(out, skill)
		}
	}
	return out
}

// Strengths returns skills scoring 7 or more, in display order. A score of 6
// is neither a strength nor a weakness.
func (s *Statistics) Strengths() []Skill {
	var out []Skill
	for _, skill := range Skills {
		if s.scores[skill] >= strengthFrom {
			out = append(out, skill)
		}
	}
	return out
}
