// Package filter implements topic classification and the domain blacklist.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/multierr"

	"news_digest/internal/model"
)

type topic struct {
	title    string
	patterns []*regexp.Regexp
}

// Set is a compiled, immutable collection of topic filters.
type Set struct {
	topics []topic
}

// Compile builds a Set from topic definitions. Every alternative of every
// topic is compiled; all failures are returned together as *model.ConfigError
// values combined with multierr.
func Compile(filters []model.TopicFilter) (*Set, error) {
	var (
		set  Set
		errs error
	)

	for i, f := range filters {
		title := strings.TrimSpace(f.Title)
		if title == "" {
			errs = multierr.Append(errs, &model.ConfigError{
				Entry: fmt.Sprintf("filters[%d]", i),
				Err:   errors.New("title is required"),
			})
			continue
		}

		t := topic{title: title}
		failed := 0
		for _, alt := range strings.Split(f.Value, ",") {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				continue
			}
			re, err := compilePattern(alt)
			if err != nil {
				failed++
				errs = multierr.Append(errs, &model.ConfigError{
					Entry: fmt.Sprintf("filters[%d] %q", i, title),
					Err:   err,
				})
				continue
			}
			t.patterns = append(t.patterns, re)
		}

		if failed > 0 {
			continue
		}
		if len(t.patterns) == 0 {
			errs = multierr.Append(errs, &model.ConfigError{
				Entry: fmt.Sprintf("filters[%d] %q", i, title),
				Err:   errors.New("no patterns"),
			})
			continue
		}
		set.topics = append(set.topics, t)
	}

	if errs != nil {
		return nil, errs
	}
	return &set, nil
}

// Classify returns the titles of all topics matching text, in configuration
// order. Topics sharing a title are reported once.
func (s *Set) Classify(text string) []string {
	var labels []string
	for _, t := range s.topics {
		if !t.matches(text) || contains(labels, t.title) {
			continue
		}
		labels = append(labels, t.title)
	}
	return labels
}

// Empty reports whether no topics are configured.
func (s *Set) Empty() bool {
	return len(s.topics) == 0
}

// Titles returns the configured topic titles in order.
func (s *Set) Titles() []string {
	titles := make([]string, 0, len(s.topics))
	for _, t := range s.topics {
		titles = append(titles, t.title)
	}
	return titles
}

func (t topic) matches(text string) bool {
	for _, re := range t.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return re, nil
}
