package property

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// landFile mirrors the YAML representation of a land entry.
type landFile struct {
	ID      uint64 `yaml:"id"`
	Owner   string `yaml:"owner"`
	Price   string `yaml:"price"`
	ForSale *bool  `yaml:"for_sale"`
}

// LoadFile reads a YAML list of land entries and returns a static directory.
//
//	- id: 1
//	  owner: "0x1111111111111111111111111111111111111111"
//	  price: "1000000000000000000"
//	  for_sale: true
func LoadFile(path string) (*Static, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lands: %w", err)
	}
	defer file.Close()

	var entries []landFile
	if err := yaml.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode lands: %w", err)
	}
	lands, err := parseEntries(entries)
	if err != nil {
		return nil, err
	}
	return NewStatic(lands...), nil
}

func parseEntries(entries []landFile) ([]Land, error) {
	lands := make([]Land, 0, len(entries))
	seen := make(map[uint64]struct{}, len(entries))
	for _, entry := range entries {
		if entry.ID == 0 {
			return nil, fmt.Errorf("land id required")
		}
		if _, exists := seen[entry.ID]; exists {
			return nil, fmt.Errorf("duplicate land %d", entry.ID)
		}
		seen[entry.ID] = struct{}{}

		owner := strings.TrimSpace(entry.Owner)
		if !common.IsHexAddress(owner) {
			return nil, fmt.Errorf("land %d owner: invalid address %q", entry.ID, entry.Owner)
		}
		price := big.NewInt(0)
		if trimmed := strings.TrimSpace(entry.Price); trimmed != "" {
			if _, ok := price.SetString(trimmed, 10); !ok || price.Sign() < 0 {
				return nil, fmt.Errorf("land %d price: invalid amount %q", entry.ID, entry.Price)
			}
		}
		forSale := true
		if entry.ForSale != nil {
			forSale = *entry.ForSale
		}
		lands = append(lands, Land{
			ID:      entry.ID,
			Owner:   common.HexToAddress(owner),
			Price:   price,
			ForSale: forSale,
		})
	}
	return lands, nil
}
