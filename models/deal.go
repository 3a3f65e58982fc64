package models

import (
	"encoding/json"
	"time"
)

type ObjectType string

const (
	ObjectApartment   ObjectType = "apartment"
	ObjectStorageRoom ObjectType = "storage-room"
)

func (t ObjectType) Valid() bool {
	return t == ObjectApartment || t == ObjectStorageRoom
}

// Label is the Russian word used in chat messages.
func (t ObjectType) Label() string {
	if t == ObjectStorageRoom {
		return "Кладовка"
	}
	return "Квартира"
}

// TransferPeriod is the contractual handover window after the sale.
const TransferPeriod = 30 * 24 * time.Hour

// Deal is a sold property persisted by the sync; never updated after insert.
type Deal struct {
	ID         int64      `json:"id" db:"id"`
	DealID     int64      `json:"deal_id" db:"deal_id"`
	Project    string     `json:"project" db:"project"`
	House      int        `json:"house" db:"house"`
	ObjectType ObjectType `json:"object_type" db:"object_type"`
	Object     int        `json:"object" db:"object"`
	Facing     string     `json:"facing,omitempty" db:"facing"`
	CreatedOn  time.Time  `json:"created_on" db:"created_on"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

func (d Deal) TransferDeadline() time.Time {
	return d.CreatedOn.Add(TransferPeriod)
}

type PropertyAttributes struct {
	Facing *string `json:"facing"`
}

// EnrichmentResult is the first property of a Profitbase deal lookup.
type EnrichmentResult struct {
	Status      string             `json:"-"`
	ID          int64              `json:"id"`
	Number      string             `json:"number"`
	HouseName   string             `json:"houseName"`
	ProjectName string             `json:"projectName"`
	SoldAt      string             `json:"soldAt"`
	Attributes  PropertyAttributes `json:"attributes"`
	Raw         json.RawMessage    `json:"-"`
}
