package model

// LevelName identifies one rung of the geographic fallback ladder.
type LevelName string

const (
	LevelLocal       LevelName = "Local"
	LevelDistrict    LevelName = "District"
	LevelCounty      LevelName = "County"
	LevelRegional    LevelName = "Regional"
	LevelNational    LevelName = "National"
	LevelContinental LevelName = "Continental"
	LevelGlobal      LevelName = "Global"
)

// Levels lists every level from most to least specific.
var Levels = []LevelName{
	LevelLocal,
	LevelDistrict,
	LevelCounty,
	LevelRegional,
	LevelNational,
	LevelContinental,
	LevelGlobal,
}

// Rank returns the position of the level in Levels, or -1 if unknown.
// Lower ranks are more specific.
func (l LevelName) Rank() int {
	for i, n := range Levels {
		if n == l {
			return i
		}
	}
	return -1
}

// HierarchyLevel is one rung with its composed query string.
type HierarchyLevel struct {
	Name      LevelName `json:"name"`
	SearchKey string    `json:"search_key"`
}
