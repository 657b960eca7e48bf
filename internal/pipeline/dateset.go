package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/surface"
)

// Entry is one trade date of a dateset.
type Entry struct {
	TradeDate     string `json:"trade_date" yaml:"trade_date" validate:"required,datetime=2006-01-02"`
	NextTradeDate string `json:"next_trade_date,omitempty" yaml:"next_trade_date" validate:"omitempty,datetime=2006-01-02"`
	Label         string `json:"label,omitempty" yaml:"label"`
	Regime        string `json:"regime,omitempty" yaml:"regime"`
	Comment       string `json:"comment,omitempty" yaml:"comment"`
}

// Dateset is a named list of trade dates to run as a batch.
type Dateset struct {
	Dates []Entry `json:"dates" yaml:"dates" validate:"required,min=1,dive"`
}

var validate = validator.New()

// LoadDateset reads a dateset file. The body is parsed as JSON first and as
// YAML when that fails.
func LoadDateset(path string) (*Dateset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read dateset", err).WithContext("path", path)
	}
	return ParseDateset(raw, path)
}

// ParseDateset decodes and validates a dateset body. name is only used in
// error messages.
func ParseDateset(raw []byte, name string) (*Dateset, error) {
	var ds Dateset
	if jsonErr := json.Unmarshal(raw, &ds); jsonErr != nil {
		ds = Dateset{}
		if err := yaml.Unmarshal(raw, &ds); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("%s is neither valid JSON nor YAML", name), err).
				WithContext("json_error", jsonErr.Error())
		}
	}
	if len(ds.Dates) == 0 {
		return nil, apperrors.NewConfigError(fmt.Sprintf("%s does not contain any dates", name), nil)
	}
	if err := validate.Struct(ds); err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("invalid dateset %s: %v", name, err), err)
	}
	return &ds, nil
}

// Dates resolves the entry's trade date and next trade date. A missing next
// date defaults to the next weekday.
func (e Entry) Dates() (trade, next time.Time, err error) {
	trade, err = surface.ParseDate(e.TradeDate)
	if err != nil {
		return trade, next, apperrors.NewConfigError("invalid trade_date", err).WithContext("trade_date", e.TradeDate)
	}
	if e.NextTradeDate == "" {
		return trade, NextBusinessDay(trade), nil
	}
	next, err = surface.ParseDate(e.NextTradeDate)
	if err != nil {
		return trade, next, apperrors.NewConfigError("invalid next_trade_date", err).WithContext("next_trade_date", e.NextTradeDate)
	}
	return trade, next, nil
}

// NextBusinessDay returns the next Monday-to-Friday date after day.
// Exchange holidays are not considered.
func NextBusinessDay(day time.Time) time.Time {
	next := day.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
