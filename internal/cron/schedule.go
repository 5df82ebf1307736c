// Package cron implements the cron/reminder scheduler: recurring and
// one-shot schedules that fire synthesized messages back into the ingress
// router rather than calling a message-sender or agent-runner directly.
package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Kind identifies which of the three schedule variants a Schedule carries.
type Kind string

const (
	KindAt    Kind = "at"
	KindEvery Kind = "every"
	KindCron  Kind = "cron"
)

// Schedule is a tagged-variant schedule: exactly one of At/Every/Expr
// applies, selected by Kind.
type Schedule struct {
	Kind Kind          `json:"kind"`
	AtMs int64         `json:"at_ms,omitempty"`
	Every time.Duration `json:"every_ms,omitempty"`
	Expr string        `json:"expr,omitempty"`
	Tz   string        `json:"tz,omitempty"`
}

// At builds a one-shot schedule firing at the given time.
func At(t time.Time) Schedule {
	return Schedule{Kind: KindAt, AtMs: t.UnixMilli()}
}

// Every builds a recurring schedule firing every d, anchored at anchor (or
// now if anchor is zero).
func Every(d time.Duration, anchor time.Time) Schedule {
	s := Schedule{Kind: KindEvery, Every: d}
	if !anchor.IsZero() {
		s.AtMs = anchor.UnixMilli()
	}
	return s
}

// Cron builds a schedule from a standard cron expression, optionally
// evaluated in tz (defaults to the evaluating clock's location).
func Cron(expr, tz string) Schedule {
	return Schedule{Kind: KindCron, Expr: strings.TrimSpace(expr), Tz: strings.TrimSpace(tz)}
}

// Validate parses/checks the schedule without computing a next run.
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindAt:
		if s.AtMs == 0 {
			return fmt.Errorf("cron: at schedule missing timestamp")
		}
	case KindEvery:
		if s.Every <= 0 {
			return fmt.Errorf("cron: every schedule missing duration")
		}
	case KindCron:
		if s.Expr == "" {
			return fmt.Errorf("cron: cron schedule missing expression")
		}
		if _, err := cronParser.Parse(s.Expr); err != nil {
			return fmt.Errorf("cron: invalid cron expression: %w", err)
		}
	default:
		return fmt.Errorf("cron: unknown schedule kind %q", s.Kind)
	}
	return nil
}

// Next returns the next run time strictly after `after`. A one-shot At
// schedule returns ok=false once its single firing has passed.
func (s Schedule) Next(after time.Time) (next time.Time, ok bool, err error) {
	switch s.Kind {
	case KindAt:
		at := time.UnixMilli(s.AtMs)
		if !after.Before(at) {
			return time.Time{}, false, nil
		}
		return at, true, nil
	case KindEvery:
		if s.Every <= 0 {
			return time.Time{}, false, fmt.Errorf("cron: every schedule missing duration")
		}
		if s.AtMs != 0 {
			anchor := time.UnixMilli(s.AtMs)
			if after.Before(anchor) {
				return anchor, true, nil
			}
			elapsed := after.Sub(anchor)
			ticks := elapsed/s.Every + 1
			return anchor.Add(ticks * s.Every), true, nil
		}
		return after.Add(s.Every), true, nil
	case KindCron:
		schedule, parseErr := cronParser.Parse(s.Expr)
		if parseErr != nil {
			return time.Time{}, false, fmt.Errorf("cron: parse expression: %w", parseErr)
		}
		loc := after.Location()
		if s.Tz != "" {
			if tz, tzErr := time.LoadLocation(s.Tz); tzErr == nil {
				loc = tz
			}
		}
		next := schedule.Next(after.In(loc))
		return next, !next.IsZero(), nil
	default:
		return time.Time{}, false, fmt.Errorf("cron: unknown schedule kind %q", s.Kind)
	}
}
