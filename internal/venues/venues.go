// Package venues holds the fixed per-area catalog of rehearsal venues.
//
// A practice's place must be one of the venues of its group's area. The
// catalog is compiled in; v1 covers a single administrative area.
package venues

import (
	"errors"
	"fmt"
)

// ErrUnknownArea is returned when an area has no venue catalog.
var ErrUnknownArea = errors.New("no venue catalog for area")

// Venue is a community center usable as a rehearsal place. Image is the path
// of the thumbnail under the static content domain.
type Venue struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Image   string `json:"image"`
}

var byArea = map[string][]Venue{
	"中央区": {
		{Name: "京橋区民館", Address: "東京都中央区京橋2丁目6-7", Image: "images/tokyo-chuoku/kyobashi_meijiza.jpg"},
		{Name: "京橋プラザ区民館", Address: "東京都中央区銀座1-25-3", Image: "images/tokyo-chuoku/kyobashiplaza_kyobashikoen.png"},
		{Name: "銀座区民館", Address: "東京都中央区銀座4丁目13-17", Image: "images/tokyo-chuoku/ginza_kabukiza.png"},
		{Name: "新富区民館", Address: "東京都中央区新富1丁目13-24", Image: "images/tokyo-chuoku/shintomi_shintomibashi.jpeg"},
		{Name: "明石町区民館", Address: "東京都中央区明石町14番2号", Image: "images/tokyo-chuoku/akashicho_seiroka.jpg"},
		{Name: "八丁堀区民館", Address: "東京都中央区八丁堀4丁目13-12", Image: "images/tokyo-chuoku/hacchobori_sakuragawapark.jpeg"},
		{Name: "新川区民館", Address: "東京都中央区新川1丁目26-1", Image: "images/tokyo-chuoku/shinkawa_shinkawa.jpeg"},
		{Name: "堀留町区民館", Address: "東京都中央区日本橋堀留町1丁目1-1", Image: "images/tokyo-chuoku/horidomecho_suginomorishrine.jpeg"},
		{Name: "人形町区民館", Address: "東京都中央区日本橋人形町2丁目14-5", Image: "images/tokyo-chuoku/ningyocho_ningyocho.jpeg"},
		{Name: "久松町区民館", Address: "東京都中央区日本橋久松町1-2", Image: "images/tokyo-chuoku/hisamatsucho_kodomopark.jpeg"},
		{Name: "浜町区民館", Address: "東京都中央区日本橋浜町3丁目37-1", Image: "images/tokyo-chuoku/hamacho_hamachopark.jpeg"},
		{Name: "新馬橋区民館", Address: "東京都中央区日本橋兜町11-9", Image: "images/tokyo-chuoku/shimbabashi_kabutocho.jpeg"},
		{Name: "佃区民館", Address: "東京都中央区佃2丁目17-8", Image: "images/tokyo-chuoku/tsukuda_tsukudaoohashi.jpeg"},
		{Name: "月島区民館", Address: "東京都中央区月島2丁目8-11", Image: "images/tokyo-chuoku/tsukishima_monjastreet.jpeg"},
		{Name: "勝どき区民館", Address: "東京都中央区勝どき1丁目5-1 勝どき1丁目アパート1号棟", Image: "images/tokyo-chuoku/katsudoki_kachidokibashi.jpeg"},
		{Name: "豊海区民館", Address: "東京都中央区勝どき6丁目7", Image: "images/tokyo-chuoku/toyomi_toyomiundokoen.jpeg"},
		{Name: "晴海区民館", Address: "東京都中央区晴海1丁目8-6", Image: "images/tokyo-chuoku/harumi_terminal.jpeg"},
		{Name: "中央区立産業会館", Address: "東京都中央区東日本橋2-22-4", Image: "images/tokyo-chuoku/sangyo_sangyokaikan.jpeg"},
	},
}

// ByArea returns the venue list for the given area.
func ByArea(area string) ([]Venue, error) {
	vs, ok := byArea[area]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArea, area)
	}
	return vs, nil
}

// Lookup finds the venue with the given name inside an area's catalog.
func Lookup(area, name string) (Venue, bool) {
	vs, ok := byArea[area]
	if !ok {
		return Venue{}, false
	}
	for _, v := range vs {
		if v.Name == name {
			return v, true
		}
	}
	return Venue{}, false
}
