package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"deal_watcher/models"
)

const (
	storageRoomMarker = "Кладовк"
	houseDelimiter    = "№"
	soldAtLayout      = "2006-01-02 15:04"

	// InvalidHouse is stored when the house name carries no parsable number.
	InvalidHouse = -1
)

// MapDeal turns a Profitbase property into a Deal for the given CRM deal id.
// A bad house number falls back to InvalidHouse; a bad object number fails the deal.
func MapDeal(dealID int64, r *models.EnrichmentResult) (*models.Deal, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: deal %d: empty property", models.ErrEnrichment, dealID)
	}

	object, err := strconv.Atoi(strings.TrimSpace(r.Number))
	if err != nil {
		return nil, fmt.Errorf("%w: deal %d: object number %q: %w", models.ErrEnrichment, dealID, r.Number, err)
	}

	d := &models.Deal{
		DealID:     dealID,
		Project:    r.ProjectName,
		House:      ParseHouse(r.HouseName),
		ObjectType: ObjectTypeOf(r.HouseName),
		Object:     object,
		CreatedOn:  ParseSoldAt(r.SoldAt),
	}
	if r.Attributes.Facing != nil {
		d.Facing = *r.Attributes.Facing
	}
	return d, nil
}

func ObjectTypeOf(houseName string) models.ObjectType {
	if strings.Contains(houseName, storageRoomMarker) {
		return models.ObjectStorageRoom
	}
	return models.ObjectApartment
}

// ParseHouse takes the segment after the first "№" (or the whole name) as the house number.
func ParseHouse(houseName string) int {
	segment := houseName
	if _, after, found := strings.Cut(houseName, houseDelimiter); found {
		segment = after
	}
	house, err := strconv.Atoi(strings.TrimSpace(segment))
	if err != nil {
		return InvalidHouse
	}
	return house
}

// ParseSoldAt reads "YYYY-MM-DD HH:MM" as UTC; unparsable input yields the zero time.
func ParseSoldAt(s string) time.Time {
	t, err := time.ParseInLocation(soldAtLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
