package application

import "michi-relay/internal/domain"

// IntentClassifier turns a transcript into a robot reaction.
type IntentClassifier interface {
	Classify(transcript string) domain.Category
	IsWake(transcript string) bool
}
