package models

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// DownloadOption is the closed set of policies describing which part of an
// item should be mirrored on disk. Options serialize to a stable string id
// so the user's choice can be kept as a preference.
type DownloadOption interface {
	optionID() string
}

type AllItemsOption struct{}

type CurrentItemOption struct{}

type RemainingItemsOption struct{}

// NumberItemsOption covers the current chapter plus the following N-1.
type NumberItemsOption struct {
	Count int
}

// SpecificFilesOption names explicit file ids to mirror; chapters related
// to any of those files are fetched.
type SpecificFilesOption struct {
	FileIDs []string
}

const (
	optionAll       = "all_items"
	optionCurrent   = "current_item"
	optionRemaining = "remaining_items"
	prefixNumber    = "number_items_"
	prefixSpecific  = "specific_files_"
)

func (AllItemsOption) optionID() string       { return optionAll }
func (CurrentItemOption) optionID() string    { return optionCurrent }
func (RemainingItemsOption) optionID() string { return optionRemaining }

func (o NumberItemsOption) optionID() string {
	return prefixNumber + strconv.Itoa(o.Count)
}

func (o SpecificFilesOption) optionID() string {
	encoded := make([]string, len(o.FileIDs))
	for i, id := range o.FileIDs {
		encoded[i] = base64.StdEncoding.EncodeToString([]byte(id))
	}
	return prefixSpecific + strings.Join(encoded, ",")
}

// EncodeDownloadOption returns the persisted form of an option.
// A nil option encodes to the empty string.
func EncodeDownloadOption(option DownloadOption) string {
	if option == nil {
		return ""
	}
	return option.optionID()
}

// DecodeDownloadOption is the inverse of EncodeDownloadOption. Unknown or
// malformed inputs decode to nil rather than erroring: a corrupt persisted
// preference should behave as "no option chosen".
func DecodeDownloadOption(raw string) DownloadOption {
	switch {
	case raw == optionAll:
		return AllItemsOption{}
	case raw == optionCurrent:
		return CurrentItemOption{}
	case raw == optionRemaining:
		return RemainingItemsOption{}
	case strings.HasPrefix(raw, prefixNumber):
		count, err := strconv.Atoi(strings.TrimPrefix(raw, prefixNumber))
		if err != nil || count < 1 {
			return nil
		}
		return NumberItemsOption{Count: count}
	case strings.HasPrefix(raw, prefixSpecific):
		joined := strings.TrimPrefix(raw, prefixSpecific)
		if joined == "" {
			return nil
		}
		var ids []string
		for _, part := range strings.Split(joined, ",") {
			id, err := base64.StdEncoding.DecodeString(part)
			if err != nil {
				return nil
			}
			ids = append(ids, string(id))
		}
		return SpecificFilesOption{FileIDs: ids}
	default:
		return nil
	}
}
