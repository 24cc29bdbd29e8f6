package parcel

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// TownGIS describes a town assessor parcel service.
type TownGIS struct {
	Name string `yaml:"name"`
	// Keywords match against the address town segment; Exclude suppresses a match
	// when a more specific town contains this one's name ("east hartford").
	Keywords []string `yaml:"keywords"`
	Exclude  []string `yaml:"exclude"`
	// Endpoint is an ArcGIS REST layer query URL.
	Endpoint      string   `yaml:"endpoint"`
	AddressField  string   `yaml:"address_field"`
	UseCodeField  string   `yaml:"use_code_field"`
	AcreageFields []string `yaml:"acreage_fields"`
	// RequiresProxy routes calls through the CORS pass-through proxy.
	RequiresProxy bool `yaml:"requires_proxy"`
	Priority      int  `yaml:"priority"`
}

// TownTable is the static town configuration.
type TownTable struct {
	Towns []TownGIS `yaml:"towns"`
	// Aliases rewrite a village or postal name to its assessor town.
	Aliases map[string]string `yaml:"aliases"`
}

var trailingStateZipRe = regexp.MustCompile(`(\s+(ct|connecticut))?(\s+\d{5}(-\d{4})?)?$`)

// TownMatcher finds the town GIS service and assessor town for an address.
type TownMatcher struct {
	towns   []TownGIS
	aliases map[string]string
}

// NewTownMatcher builds a matcher. Towns are checked in ascending Priority order,
// keeping table order for ties.
func NewTownMatcher(table TownTable) *TownMatcher {
	towns := make([]TownGIS, len(table.Towns))
	copy(towns, table.Towns)
	sort.SliceStable(towns, func(i, j int) bool { return towns[i].Priority < towns[j].Priority })

	aliases := make(map[string]string, len(table.Aliases))
	for k, v := range table.Aliases {
		aliases[normalize(k)] = v
	}
	return &TownMatcher{towns: towns, aliases: aliases}
}

// town returns the cleaned, alias-resolved town segment of an address.
func (m *TownMatcher) town(address string) string {
	seg := strings.TrimSpace(trailingStateZipRe.ReplaceAllString(townSegment(address), ""))
	if alias, ok := m.aliases[seg]; ok {
		return normalize(alias)
	}
	return seg
}

// Match returns the town GIS descriptor for the address, if any.
func (m *TownMatcher) Match(address string) (TownGIS, bool) {
	seg := m.town(address)
	if seg == "" {
		return TownGIS{}, false
	}
	for _, t := range m.towns {
		if !containsAny(seg, t.Keywords) || containsAny(seg, t.Exclude) {
			continue
		}
		return t, true
	}
	return TownGIS{}, false
}

// AssessorTown returns the upper-case assessor town name for the address, with
// village aliases applied. It returns "" when the address has no town segment.
func (m *TownMatcher) AssessorTown(address string) string {
	if !strings.Contains(address, ",") {
		return ""
	}
	return strings.ToUpper(m.town(address))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n = normalize(n); n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// LoadTownTable reads a town table from a YAML file.
func LoadTownTable(path string) (TownTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TownTable{}, eris.Wrapf(err, "parcel: read town table %s", path)
	}
	var table TownTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return TownTable{}, eris.Wrap(err, "parcel: parse town table")
	}
	if len(table.Towns) == 0 {
		return TownTable{}, eris.Errorf("parcel: town table %s has no towns", path)
	}
	return table, nil
}

// DefaultTownTable is the built-in Greater Hartford service area.
func DefaultTownTable() TownTable {
	acres := []string{"ACRES", "GIS_ACRES", "LAND_ACRES", "Acreage"}
	return TownTable{
		Towns: []TownGIS{
			{
				Name:          "East Hartford",
				Keywords:      []string{"east hartford"},
				Endpoint:      "https://gis.easthartfordct.gov/arcgis/rest/services/Parcels/MapServer/0/query",
				AddressField:  "LOCATION",
				UseCodeField:  "USE_DESC",
				AcreageFields: acres,
				Priority:      10,
			},
			{
				Name:          "West Hartford",
				Keywords:      []string{"west hartford"},
				Endpoint:      "https://gis.westhartfordct.gov/arcgis/rest/services/Assessor/Parcels/MapServer/0/query",
				AddressField:  "SITE_ADDRESS",
				UseCodeField:  "LUC_DESC",
				AcreageFields: acres,
				Priority:      10,
			},
			{
				Name:          "Hartford",
				Keywords:      []string{"hartford"},
				Exclude:       []string{"east hartford", "west hartford"},
				Endpoint:      "https://gis.hartford.gov/arcgis/rest/services/Parcels/MapServer/0/query",
				AddressField:  "LOCATION",
				UseCodeField:  "USE_DESC",
				AcreageFields: acres,
				RequiresProxy: true,
				Priority:      20,
			},
			{
				Name:          "South Windsor",
				Keywords:      []string{"south windsor"},
				Endpoint:      "https://gis.southwindsor-ct.gov/arcgis/rest/services/Parcels/MapServer/0/query",
				AddressField:  "LOCATION",
				AcreageFields: acres,
				Priority:      10,
			},
			{
				Name:          "Windsor",
				Keywords:      []string{"windsor"},
				Exclude:       []string{"south windsor", "east windsor", "windsor locks"},
				Endpoint:      "https://gis.townofwindsorct.com/arcgis/rest/services/Parcels/MapServer/0/query",
				AddressField:  "LOCATION",
				AcreageFields: acres,
				Priority:      20,
			},
			{
				Name:          "Glastonbury",
				Keywords:      []string{"glastonbury"},
				Endpoint:      "https://gis.glastonbury-ct.gov/arcgis/rest/services/Parcels/MapServer/0/query",
				AddressField:  "LOCATION",
				UseCodeField:  "USE_DESC",
				AcreageFields: acres,
				Priority:      20,
			},
			{
				Name:          "Manchester",
				Keywords:      []string{"manchester"},
				Endpoint:      "https://gis.manchesterct.gov/arcgis/rest/services/Parcels/MapServer/0/query",
				AddressField:  "LOCATION",
				UseCodeField:  "USE_DESC",
				AcreageFields: acres,
				RequiresProxy: true,
				Priority:      20,
			},
			{
				Name:          "Wethersfield",
				Keywords:      []string{"wethersfield"},
				Endpoint:      "https://gis.wethersfieldct.gov/arcgis/rest/services/Parcels/MapServer/0/query",
				AddressField:  "LOCATION",
				AcreageFields: acres,
				Priority:      20,
			},
		},
		Aliases: map[string]string{
			"south glastonbury": "glastonbury",
			"buckingham":        "glastonbury",
			"storrs":            "mansfield",
			"storrs mansfield":  "mansfield",
			"rockville":         "vernon",
			"unionville":        "farmington",
			"collinsville":      "canton",
			"weatogue":          "simsbury",
			"broad brook":       "east windsor",
			"poquonock":         "windsor",
			"wilson":            "windsor",
			"niantic":           "east lyme",
			"moosup":            "plainfield",
			"kensington":        "berlin",
			"plantsville":       "southington",
			"yalesville":        "wallingford",
		},
	}
}
