// internal/models/licensing.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/javajoker/creative-settlement/internal/royalty"
)

type DerivativeMode string

const (
	DerivativeNone            DerivativeMode = "none"
	DerivativeWithAttribution DerivativeMode = "withAttribution"
	DerivativeFullRemix       DerivativeMode = "fullRemix"
)

func (m DerivativeMode) Valid() bool {
	switch m {
	case DerivativeNone, DerivativeWithAttribution, DerivativeFullRemix:
		return true
	}
	return false
}

type RedistributionKind string

const (
	RedistributionNone    RedistributionKind = "none"
	RedistributionLimited RedistributionKind = "limited"
	RedistributionFull    RedistributionKind = "full"
)

// Redistribution is a closed variant: UsageTerms is carried only by the
// limited kind.
type Redistribution struct {
	Kind       RedistributionKind `json:"kind" gorm:"type:varchar(20);not null;default:'none'"`
	UsageTerms string             `json:"usage_terms,omitempty" gorm:"type:text"`
}

func NoRedistribution() Redistribution {
	return Redistribution{Kind: RedistributionNone}
}

func LimitedRedistribution(usageTerms string) Redistribution {
	return Redistribution{Kind: RedistributionLimited, UsageTerms: usageTerms}
}

func FullRedistribution() Redistribution {
	return Redistribution{Kind: RedistributionFull}
}

func (r Redistribution) Validate() error {
	switch r.Kind {
	case RedistributionNone, RedistributionFull:
		if r.UsageTerms != "" {
			return fmt.Errorf("usage terms are only allowed for limited redistribution, got kind %q", r.Kind)
		}
		return nil
	case RedistributionLimited:
		if r.UsageTerms == "" {
			return errors.New("limited redistribution requires usage terms")
		}
		return nil
	default:
		return fmt.Errorf("unknown redistribution kind %q", r.Kind)
	}
}

// RoyaltySplits is the ordered split list stored as JSON.
type RoyaltySplits []royalty.Split

func (r RoyaltySplits) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *RoyaltySplits) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(bytes, r)
}

// LicensingAgreement is keyed by content id; a resubmission after rejection
// overwrites the same row.
type LicensingAgreement struct {
	ContentID       string          `json:"content_id" gorm:"primaryKey;size:128"`
	OwnerID         string          `json:"owner_id" gorm:"size:128;not null;index"`
	CommercialUse   bool            `json:"commercial_use" gorm:"not null;default:false"`
	DerivativeWorks DerivativeMode  `json:"derivative_works" gorm:"type:varchar(20);not null"`
	Redistribution  Redistribution  `json:"redistribution" gorm:"embedded;embeddedPrefix:redistribution_"`
	RoyaltySplits   RoyaltySplits   `json:"royalty_splits" gorm:"type:jsonb;not null"`
	FrozenSplits    RoyaltySplits   `json:"frozen_splits,omitempty" gorm:"type:jsonb"`
	TermsAccepted   bool            `json:"terms_accepted" gorm:"not null;default:false"`
	SubmittedAt     int64           `json:"submitted_at" gorm:"not null"`
	Status          AgreementStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	ReviewedBy      string          `json:"reviewed_by,omitempty" gorm:"size:128"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Splits returns the split frozen at approval, falling back to the submitted
// one for agreements that have not been approved yet.
func (a *LicensingAgreement) Splits() []royalty.Split {
	if a.Status == AgreementStatusApproved && len(a.FrozenSplits) > 0 {
		return a.FrozenSplits
	}
	return a.RoyaltySplits
}
