package postcode

import (
	"fmt"
	"strings"

	"github.com/kalambet/prowler/internal/boundary"
)

// ONSBaseURL is the prefix for ONS local statistics area pages.
const ONSBaseURL = "https://ons.gov.uk/explore-local-statistics/areas/"

// LookupResult mirrors the JSON body returned by the postcode API.
// Treat it as a value: use WithBoundary instead of mutating APIData.
type LookupResult struct {
	Status    int        `json:"status"`
	APIData   *GeoRecord `json:"api_data,omitempty"`
	ASF       *ASFRecord `json:"asf,omitempty"`
	Error     string     `json:"error,omitempty"`
	Message   string     `json:"message,omitempty"`
	Effective bool       `json:"effective,omitempty"`
	APISource string     `json:"api_source,omitempty"`
}

// ASFRecord is the authoritative status record for a postcode.
type ASFRecord struct {
	Postcode      string `json:"postcode"`
	Status        string `json:"status"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to"`
	AreaName      string `json:"area_name"`
	SourceName    string `json:"source_name"`
}

// GeoRecord carries geographic and administrative attributes.
type GeoRecord struct {
	Postcode                      string            `json:"postcode"`
	Quality                       int               `json:"quality"`
	Eastings                      *int              `json:"eastings,omitempty"`
	Northings                     *int              `json:"northings,omitempty"`
	Country                       string            `json:"country"`
	NHSHA                         string            `json:"nhs_ha"`
	Longitude                     *float64          `json:"longitude,omitempty"`
	Latitude                      *float64          `json:"latitude,omitempty"`
	EuropeanElectoralRegion       string            `json:"european_electoral_region"`
	PrimaryCareTrust              string            `json:"primary_care_trust"`
	Region                        string            `json:"region"`
	LSOA                          string            `json:"lsoa"`
	MSOA                          string            `json:"msoa"`
	Incode                        string            `json:"incode"`
	Outcode                       string            `json:"outcode"`
	ParliamentaryConstituency     string            `json:"parliamentary_constituency"`
	ParliamentaryConstituency2024 string            `json:"parliamentary_constituency_2024,omitempty"`
	AdminDistrict                 string            `json:"admin_district"`
	Parish                        string            `json:"parish"`
	AdminCounty                   *string           `json:"admin_county"`
	AdminWard                     string            `json:"admin_ward"`
	CED                           *string           `json:"ced"`
	CCG                           string            `json:"ccg"`
	NUTS                          string            `json:"nuts"`
	PFA                           string            `json:"pfa,omitempty"`
	DateOfIntroduction            string            `json:"date_of_introduction,omitempty"`
	Codes                         map[string]string `json:"codes,omitempty"`
	Terminated                    string            `json:"terminated,omitempty"`
	YearTerminated                int               `json:"year_terminated,omitempty"`
	MonthTerminated               int               `json:"month_terminated,omitempty"`

	DistrictBoundary *boundary.FeatureCollection `json:"osm_admin_district_geojson,omitempty"`
}

// Found reports whether the result carries a usable primary record.
func (r LookupResult) Found() bool {
	return r.Status != 404 && r.ASF != nil
}

// FailureMessage returns the service-provided reason for a not-found result.
func (r LookupResult) FailureMessage() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}

// District returns the administrative district name, or "" if unknown.
func (r LookupResult) District() string {
	if r.APIData == nil {
		return ""
	}
	return strings.TrimSpace(r.APIData.AdminDistrict)
}

// WithBoundary returns a copy of r whose geo record carries fc.
// The receiver's geo record is left untouched.
func (r LookupResult) WithBoundary(fc *boundary.FeatureCollection) LookupResult {
	if r.APIData == nil {
		return r
	}
	geo := *r.APIData
	if r.APIData.Codes != nil {
		geo.Codes = make(map[string]string, len(r.APIData.Codes))
		for k, v := range r.APIData.Codes {
			geo.Codes[k] = v
		}
	}
	geo.DistrictBoundary = fc
	r.APIData = &geo
	return r
}

// StatusLabel returns the badge text shown for a result.
func (r LookupResult) StatusLabel() string {
	switch {
	case !r.Found():
		return "Error"
	case r.APIData != nil && r.APIData.Terminated != "":
		return "Terminated"
	default:
		return "Active"
	}
}

// Coordinates formats latitude and longitude to five decimal places.
func (g *GeoRecord) Coordinates() string {
	if g == nil || g.Latitude == nil || g.Longitude == nil || *g.Latitude == 0 || *g.Longitude == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.5f, %.5f", *g.Latitude, *g.Longitude)
}

// TerminationDate formats the termination year and month as YYYY-MM.
func (g *GeoRecord) TerminationDate() string {
	if g == nil || g.YearTerminated == 0 || g.MonthTerminated == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d-%02d", g.YearTerminated, g.MonthTerminated)
}

// ONSLink returns the ONS area page for English statistical codes.
func ONSLink(code string) (string, bool) {
	if !strings.HasPrefix(code, "E") {
		return "", false
	}
	return ONSBaseURL + code, true
}
