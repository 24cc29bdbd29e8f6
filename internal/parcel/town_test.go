package parcel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHouseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123 Main St, East Hartford, CT", "123"},
		{"12B Elm St", "12b"},
		{"  42 Oak Ave", "42"},
		{"12-14 Pearl St", "12"},
		{"12½ Main St", "12"},
		{"12bc Main St", "12b"},
		{"Main St", ""},
		{"", ""},
		{"Unit 4, 10 Elm St", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, HouseNumber(tt.in))
		})
	}
}

func TestTownMatcher_Match(t *testing.T) {
	m := NewTownMatcher(DefaultTownTable())

	tests := []struct {
		address string
		want    string
		ok      bool
	}{
		{"123 Main St, East Hartford, CT", "East Hartford", true},
		{"123 Main St, EAST HARTFORD, CT 06108", "East Hartford", true},
		{"5 Farmington Ave, West Hartford, CT 06107", "West Hartford", true},
		{"10 Asylum St, Hartford, CT 06103", "Hartford", true},
		{"1 Hartford Rd, Manchester, CT 06040", "Manchester", true},
		{"9 Main St, South Windsor, CT", "South Windsor", true},
		{"9 Poquonock Ave, Windsor, CT", "Windsor", true},
		{"4 Spring St, Windsor Locks, CT", "", false},
		{"12 Main St, South Glastonbury, CT", "Glastonbury", true},
		{"3 School St, Poquonock, CT", "Windsor", true},
		{"7 Elm St, Springfield, MA", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, ok := m.Match(tt.address)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestTownMatcher_EastHartfordNeverFallsToHartford(t *testing.T) {
	// Put the generic entry first; the exclude list alone must prevent the collision.
	table := DefaultTownTable()
	for i := range table.Towns {
		table.Towns[i].Priority = 0
	}
	var generic, specific []TownGIS
	for _, tw := range table.Towns {
		if tw.Name == "Hartford" {
			generic = append(generic, tw)
		} else {
			specific = append(specific, tw)
		}
	}
	table.Towns = append(generic, specific...)

	got, ok := NewTownMatcher(table).Match("123 Main St, East Hartford, CT")
	require.True(t, ok)
	assert.Equal(t, "East Hartford", got.Name)
}

func TestTownMatcher_AssessorTown(t *testing.T) {
	m := NewTownMatcher(DefaultTownTable())

	assert.Equal(t, "MANSFIELD", m.AssessorTown("1 Storrs Rd, Storrs, CT 06268"))
	assert.Equal(t, "VERNON", m.AssessorTown("20 Union St, Rockville, CT"))
	assert.Equal(t, "EAST HARTFORD", m.AssessorTown("123 Main St, East Hartford, CT 06108"))
	assert.Equal(t, "BERLIN", m.AssessorTown("5 Main St, Kensington CT 06037"))
	assert.Empty(t, m.AssessorTown("123 Main St"))
}

func TestLoadTownTable(t *testing.T) {
	yaml := `
towns:
  - name: Vernon
    keywords: [vernon]
    endpoint: https://gis.example.test/vernon/query
    address_field: LOCATION
    acreage_fields: [ACRES]
    requires_proxy: true
    priority: 5
aliases:
  rockville: vernon
`
	path := filepath.Join(t.TempDir(), "towns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	table, err := LoadTownTable(path)
	require.NoError(t, err)
	require.Len(t, table.Towns, 1)
	assert.True(t, table.Towns[0].RequiresProxy)
	assert.Equal(t, []string{"ACRES"}, table.Towns[0].AcreageFields)

	got, ok := NewTownMatcher(table).Match("20 Union St, Rockville, CT")
	require.True(t, ok)
	assert.Equal(t, "Vernon", got.Name)
}

func TestLoadTownTable_Errors(t *testing.T) {
	_, err := LoadTownTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases: {}\n"), 0o644))
	_, err = LoadTownTable(path)
	assert.Error(t, err)
}
