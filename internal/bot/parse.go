package bot

import (
	"fmt"
	"strconv"
	"strings"

	"gigboard/internal/filter"
	"gigboard/internal/model"
)

// ParseIDArg extracts a numeric gig ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("gig ID is required")
	}
	first := strings.TrimPrefix(strings.Fields(s)[0], "#")
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid gig ID %q", s)
	}
	return id, nil
}

// parseFields splits "key=value" pairs separated by newlines or semicolons.
// Keys are case-insensitive; a later pair overrides an earlier one.
func parseFields(s string) (map[string]string, error) {
	out := make(map[string]string)
	split := func(r rune) bool { return r == '\n' || r == ';' }
	for _, part := range strings.FieldsFunc(s, split) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "desc" {
			key = "description"
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// parseBudget accepts "1500", "1,500" and "CFA 1500".
func parseBudget(s string) (float64, error) {
	clean := strings.ToLower(strings.TrimSpace(s))
	clean = strings.TrimPrefix(clean, "cfa")
	clean = strings.NewReplacer(",", "", " ", "").Replace(clean)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid budget %q", s)
	}
	return v, nil
}

// ParseDraft parses the arguments of /new.
// Format: title=...; budget=...; period=...; [location=...; category=...; description=...; status=...]
func ParseDraft(args string) (model.Draft, error) {
	fields, err := parseFields(args)
	if err != nil {
		return model.Draft{}, err
	}
	if len(fields) == 0 {
		return model.Draft{}, fmt.Errorf("usage: /new title=...; budget=...; period=hourly|daily|weekly|monthly; location=...; category=<id>; description=...")
	}

	var d model.Draft
	for key, value := range fields {
		switch key {
		case "title":
			d.Title = value
		case "description":
			d.Description = value
		case "location":
			d.Location = value
		case "budget":
			if d.Budget, err = parseBudget(value); err != nil {
				return model.Draft{}, err
			}
		case "period":
			if d.BudgetPeriod, err = model.ParseBudgetPeriod(value); err != nil {
				return model.Draft{}, err
			}
		case "category":
			if d.CategoryID, err = strconv.ParseInt(value, 10, 64); err != nil {
				return model.Draft{}, fmt.Errorf("invalid category ID %q", value)
			}
		case "status":
			if d.Status, err = model.ParseStatus(value); err != nil {
				return model.Draft{}, err
			}
		default:
			return model.Draft{}, fmt.Errorf("unknown field %q", key)
		}
	}
	return d, nil
}

// ParseEditArgs parses the arguments of /edit.
// Format: <id> key=value; key=value...
func ParseEditArgs(args string) (int64, model.Patch, error) {
	usage := fmt.Errorf("usage: /edit <id> title=...; budget=...; period=...; location=...; category=<id>; description=...")
	idPart, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	id, err := ParseIDArg(idPart)
	if err != nil {
		return 0, model.Patch{}, usage
	}
	fields, err := parseFields(rest)
	if err != nil {
		return 0, model.Patch{}, err
	}

	var p model.Patch
	for key, value := range fields {
		switch key {
		case "title":
			p.Title = &value
		case "description":
			p.Description = &value
		case "location":
			p.Location = &value
		case "budget":
			v, err := parseBudget(value)
			if err != nil {
				return 0, model.Patch{}, err
			}
			p.Budget = &v
		case "period":
			v, err := model.ParseBudgetPeriod(value)
			if err != nil {
				return 0, model.Patch{}, err
			}
			p.BudgetPeriod = &v
		case "category":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, model.Patch{}, fmt.Errorf("invalid category ID %q", value)
			}
			p.CategoryID = &v
		default:
			return 0, model.Patch{}, fmt.Errorf("unknown field %q", key)
		}
	}
	if p.Empty() {
		return 0, model.Patch{}, usage
	}
	return id, p, nil
}

// ParseApplyArgs parses the arguments of /apply.
// Format: <id> <proposal message>
func ParseApplyArgs(args string) (int64, string, error) {
	usage := fmt.Errorf("usage: /apply <id> <proposal, at least %d characters>", model.MinProposalLength)
	idPart, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	id, err := ParseIDArg(idPart)
	if err != nil {
		return 0, "", usage
	}
	proposal := strings.TrimSpace(rest)
	if proposal == "" {
		return 0, "", usage
	}
	return id, proposal, nil
}

// ParsePrice parses "min-max" or "any".
func ParsePrice(args string) (filter.PriceRange, error) {
	s := strings.ToLower(strings.TrimSpace(args))
	if s == "" || s == "any" {
		return filter.DefaultPrice, nil
	}
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return filter.PriceRange{}, fmt.Errorf("usage: /price <min-max|any>")
	}
	minV, err1 := parseBudget(lo)
	maxV, err2 := parseBudget(hi)
	if err1 != nil || err2 != nil || minV < 0 || maxV < 0 {
		return filter.PriceRange{}, fmt.Errorf("invalid price range %q", args)
	}
	if minV > maxV {
		return filter.PriceRange{}, fmt.Errorf("minimum %v is above maximum %v", minV, maxV)
	}
	return filter.PriceRange{Min: minV, Max: maxV}, nil
}

// ParseCategoryArg parses a category ID or "all" (returned as 0).
func ParseCategoryArg(args string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(args))
	if s == "" {
		return 0, fmt.Errorf("usage: /category <id|all>")
	}
	if s == "all" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid category ID %q", args)
	}
	return id, nil
}

// ParsePeriodArg parses a budget period or "any" (returned as "").
func ParsePeriodArg(args string) (model.BudgetPeriod, error) {
	s := strings.ToLower(strings.TrimSpace(args))
	switch s {
	case "":
		return "", fmt.Errorf("usage: /period <hourly|daily|weekly|monthly|any>")
	case "any":
		return "", nil
	}
	return model.ParseBudgetPeriod(s)
}

// ParsePageArg parses a 1-based page number.
func ParsePageArg(args string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("usage: /page <n>")
	}
	return n, nil
}

// callback is decoded inline button data: <mode>:<verb>:<arg>.
type callback struct {
	Mode mode
	Verb string
	Arg  string
}

func (c callback) String() string {
	return string(c.Mode) + ":" + c.Verb + ":" + c.Arg
}

// parseCallback decodes inline button data.
func parseCallback(data string) (callback, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return callback{}, fmt.Errorf("malformed callback %q", data)
	}
	m, ok := parseMode(parts[0])
	if !ok {
		return callback{}, fmt.Errorf("unknown mode in callback %q", data)
	}
	return callback{Mode: m, Verb: parts[1], Arg: parts[2]}, nil
}
