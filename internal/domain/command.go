package domain

import "fmt"

// Category is a discrete robot reaction. Its string value is the wire name
// published to the device.
type Category string

const (
	CategoryWake  Category = "wake"
	CategorySleep Category = "sleep"
	CategorySad   Category = "sad"
	CategoryHappy Category = "happy"
	CategoryMad   Category = "mad"
	CategoryDance Category = "dance"
	CategoryTalk  Category = "talk"
)

// TextCommandPrefix is the marker used to indicate text commands (vs audio)
const TextCommandPrefix = "__TEXT__:"

// WireName is the value carried in DeviceCommand.Response.
func (c Category) WireName() string {
	return string(c)
}

// Action is the status label reported back to HTTP callers.
func (c Category) Action() string {
	return string(c) + "_command_sent"
}

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryWake, CategorySleep, CategorySad, CategoryHappy,
		CategoryMad, CategoryDance, CategoryTalk:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// Outcome is the result of one dispatch cycle.
type Outcome struct {
	Transcript string
	Category   Category
}
