package models

import "strings"

// Region is collaborator data resolving an administrative region code to a
// display name for in-person/shipping requests.
type Region struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	RegionCode string `gorm:"size:20;not null;unique" json:"region_code"`
	Sido       string `gorm:"size:50" json:"sido"`
	Sigungu    string `gorm:"size:50" json:"sigungu"`
	Eubmyeonli string `gorm:"size:50" json:"eubmyeonli"`
}

// DisplayName joins the non-empty name parts, broadest first.
func (r *Region) DisplayName() string {
	parts := []string{}
	for _, p := range []string{r.Sido, r.Sigungu, r.Eubmyeonli} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
