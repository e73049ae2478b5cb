// Package nav classifies free-text user input into page-navigation actions.
package nav

import (
	"regexp"
	"strconv"
)

// Kind tags the recognized navigation intent.
type Kind int

const (
	None Kind = iota
	NextPage
	PreviousPage
	GoToPage
)

// Action is the classified intent. Page is set only for GoToPage.
type Action struct {
	Kind Kind
	Page int
}

var (
	nextRe = regexp.MustCompile(`(?i)go to (the )?next page|next page|show next page`)
	prevRe = regexp.MustCompile(`(?i)go to (the )?previous page|previous page|show previous page|go back`)
	gotoRe = regexp.MustCompile(`(?i)go to page (\d+)|show page (\d+)|page (\d+)`)
)

// Classify returns the navigation action expressed by text, if any.
// Next/previous phrases win over numbered targets, so "go to the next page"
// never parses as a page-number command.
func Classify(text string) Action {
	if nextRe.MatchString(text) {
		return Action{Kind: NextPage}
	}
	if prevRe.MatchString(text) {
		return Action{Kind: PreviousPage}
	}
	if m := gotoRe.FindStringSubmatch(text); m != nil {
		for _, group := range m[1:] {
			if group == "" {
				continue
			}
			page, err := strconv.Atoi(group)
			if err != nil {
				break
			}
			return Action{Kind: GoToPage, Page: page}
		}
	}
	return Action{}
}
