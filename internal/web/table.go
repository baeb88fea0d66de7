package web

import (
	"gopkg.in/yaml.v3"

	"github.com/peterkuimelis/setx/internal/config"
)

// CardInfo describes one card of the deck for the browser.
type CardInfo struct {
	ID       int    `json:"id"`
	Label    string `json:"label"`
	Features []int  `json:"features"`
}

// TableInfo is the JSON body of /api/config.
type TableInfo struct {
	Rows         int        `json:"rows"`
	Columns      int        `json:"columns"`
	Players      int        `json:"players"`
	HumanPlayers int        `json:"humanPlayers"`
	FeatureSize  int        `json:"featureSize"`
	FeatureCount int        `json:"featureCount"`
	GameAddr     string     `json:"gameAddr"`
	Cards        []CardInfo `json:"cards"`
}

func newTableInfo(cfg config.Config, gameAddr string) TableInfo {
	rules := cfg.Rules()
	info := TableInfo{
		Rows:         cfg.Rows,
		Columns:      cfg.Columns,
		Players:      cfg.Players,
		HumanPlayers: cfg.HumanPlayers,
		FeatureSize:  cfg.FeatureSize,
		FeatureCount: cfg.FeatureCount,
		GameAddr:     gameAddr,
		Cards:        make([]CardInfo, rules.DeckSize()),
	}
	for id := range info.Cards {
		info.Cards[id] = CardInfo{ID: id, Label: rules.Describe(id), Features: rules.Features(id)}
	}
	return info
}

// tableYAML renders cfg in the format config.Load reads, so a browser user
// can download the table and start a server with it.
func tableYAML(cfg config.Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
