package models

import "time"

// SentinelNotFound mirrors the source's "Non trouvé" placeholder, treated
// equivalently to an absent field when scoring completeness (§4.F, §9).
const SentinelNotFound = "Non trouvé"

// BaseURL is the source site AgencyLink synthesizes profile URLs against.
const BaseURL = "https://www.leboncoin.fr"

// Agency is the shared schema for AgencyBrute and AgencyFinal.
type Agency struct {
	ID               string     `bson:"_id,omitempty" json:"_id,omitempty"`
	StoreID          string     `bson:"storeId" json:"storeId"`
	Name             string     `bson:"name" json:"name"`
	Lien             string     `bson:"lien,omitempty" json:"lien,omitempty"`
	CodeSiren        string     `bson:"codeSiren,omitempty" json:"codeSiren,omitempty"`
	Logo             string     `bson:"logo,omitempty" json:"logo,omitempty"`
	Adresse          string     `bson:"adresse,omitempty" json:"adresse,omitempty"`
	ZoneIntervention string     `bson:"zoneIntervention,omitempty" json:"zoneIntervention,omitempty"`
	SiteWeb          string     `bson:"siteWeb,omitempty" json:"siteWeb,omitempty"`
	Horaires         string     `bson:"horaires,omitempty" json:"horaires,omitempty"`
	Number           string     `bson:"number,omitempty" json:"number,omitempty"`
	Description      string     `bson:"description,omitempty" json:"description,omitempty"`
	Scraped          bool       `bson:"scraped" json:"scraped"`
	ScrapedAt        *time.Time `bson:"scrapedAt,omitempty" json:"scrapedAt,omitempty"`
}

// completenessFields lists the optional fields that count toward an
// agency's completeness score (§4.F). Order is insignificant.
func (a *Agency) completenessFields() []string {
	return []string{
		a.CodeSiren, a.Logo, a.Adresse, a.ZoneIntervention,
		a.SiteWeb, a.Horaires, a.Number, a.Description,
	}
}

// CompletenessScore counts non-null, non-sentinel fields among
// {CodeSiren, logo, adresse, zoneIntervention, siteWeb, horaires, number,
// description}, per §4.F and §9's "Non trouvé is equivalent to null".
func (a *Agency) CompletenessScore() int {
	score := 0
	for _, f := range a.completenessFields() {
		if f != "" && f != SentinelNotFound {
			score++
		}
	}
	return score
}

// MoreCompleteThan implements the "higher completeness wins" merge rule
// (§4.F, §5, Law: idempotence of agency merge).
func (a *Agency) MoreCompleteThan(other *Agency) bool {
	return a.CompletenessScore() > other.CompletenessScore()
}

// AgencyLink builds the canonical profile URL from a bare storeId, mirroring
// original_source's `https://www.leboncoin.fr/boutique/<storeId>` synthesis
// (SPEC_FULL §3.1) used whenever only a storeId/name pair is known.
func AgencyLink(baseURL, storeID string) string {
	return baseURL + "/boutique/" + storeID
}
