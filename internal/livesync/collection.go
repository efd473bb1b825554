package livesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Collection names used in change notices, metrics and error reports.
const (
	CollectionItems      = "items"
	CollectionBookings   = "bookings"
	CollectionCategories = "categories"
	CollectionReviews    = "reviews"
	CollectionAbout      = "about"
	CollectionAppInfo    = "app_info"
)

type keyed interface {
	Key() string
}

// upsertFront prepends rec. A record with the same key is replaced in place
// so redelivered inserts never duplicate.
func upsertFront[T keyed](list []T, rec T) []T {
	if i := indexOf(list, rec.Key()); i >= 0 {
		out := slices.Clone(list)
		out[i] = rec
		return out
	}
	out := make([]T, 0, len(list)+1)
	out = append(out, rec)
	return append(out, list...)
}

// replace swaps the record with the same key, keeping its position.
func replace[T keyed](list []T, rec T) ([]T, bool) {
	i := indexOf(list, rec.Key())
	if i < 0 {
		return list, false
	}
	out := slices.Clone(list)
	out[i] = rec
	return out, true
}

func remove[T keyed](list []T, id string) ([]T, bool) {
	i := indexOf(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}

func indexOf[T keyed](list []T, id string) int {
	for i := range list {
		if list[i].Key() == id {
			return i
		}
	}
	return -1
}

func decodeRecord[T keyed](raw json.RawMessage) (T, error) {
	var rec T
	if len(raw) == 0 {
		return rec, errors.New("change without record")
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	if rec.Key() == "" {
		return rec, errors.New("record without id")
	}
	return rec, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("delete without old record")
	}
	var old struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &old); err != nil {
		return "", fmt.Errorf("decode old record: %w", err)
	}
	if old.ID == "" {
		return "", errors.New("old record without id")
	}
	return old.ID, nil
}

func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
