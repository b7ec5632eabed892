package feature

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidResource = errors.New("invalid resource kind")

// Resource is the utility being forecast.
type Resource string

const (
	Electricity Resource = "electricity"
	Water       Resource = "water"
	NaturalGas  Resource = "naturalgas"
	Paper       Resource = "paper"
)

// Resources lists every supported resource kind.
var Resources = []Resource{Electricity, Water, NaturalGas, Paper}

// ParseResource validates a resource kind, accepting a few common spellings.
func ParseResource(s string) (Resource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "electricity", "electric", "electrics":
		return Electricity, nil
	case "water", "waters":
		return Water, nil
	case "naturalgas", "natural_gas", "gas":
		return NaturalGas, nil
	case "paper", "papers":
		return Paper, nil
	}
	return "", fmt.Errorf("%q, %w", s, ErrInvalidResource)
}

// Valid returns ErrInvalidResource unless r is one of the canonical resource kinds.
func (r Resource) Valid() error {
	switch r {
	case Electricity, Water, NaturalGas, Paper:
		return nil
	}
	return fmt.Errorf("%q, %w", string(r), ErrInvalidResource)
}
