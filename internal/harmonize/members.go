package harmonize

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civimetric/robustness-cli/internal/fetcher"
)

// membersURL is the mledoze/countries distribution, used only when no
// local members file exists. The fetched list is cached as un_members.csv
// so repeat builds stay offline.
const membersURL = "https://raw.githubusercontent.com/mledoze/countries/master/dist/countries.json"

// Member is one UN member state in the base frame.
type Member struct {
	ISO3     string
	Name     string
	Official string
}

// countryRecord mirrors the mledoze/countries JSON entries. Only the
// fields the harmonizer reads are declared.
type countryRecord struct {
	CCA3 string `json:"cca3"`
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	AltSpellings []string `json:"altSpellings"`
	UNMember     bool     `json:"unMember"`
}

// LoadMembers resolves the UN member list: un_members.csv in rawDir wins,
// then un_members.json, then a fetch of the countries distribution cached
// back to un_members.csv. The country records are returned alongside the
// members when they are available; the name matcher prefers them because
// they carry alternate spellings.
func LoadMembers(ctx context.Context, rawDir string, f fetcher.Fetcher) ([]Member, []countryRecord, error) {
	csvPath := filepath.Join(rawDir, "un_members.csv")
	if _, err := os.Stat(csvPath); err == nil {
		members, err := readMembersCSV(csvPath)
		return members, nil, err
	}

	jsonPath := filepath.Join(rawDir, "un_members.json")
	if file, err := os.Open(jsonPath); err == nil {
		defer file.Close() //nolint:errcheck
		records, err := decodeCountries(ctx, file)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "harmonize: read %s", jsonPath)
		}
		return membersFromRecords(records), records, nil
	}

	if f == nil {
		return nil, nil, eris.Errorf(
			"harmonize: no UN members list; provide %s or %s", csvPath, jsonPath)
	}

	zap.L().Info("fetching UN members list", zap.String("url", membersURL))
	body, err := f.Download(ctx, membersURL)
	if err != nil {
		return nil, nil, eris.Wrap(err,
			"harmonize: fetch UN members list (provide un_members.csv or un_members.json to build offline)")
	}
	defer body.Close() //nolint:errcheck

	records, err := decodeCountries(ctx, body)
	if err != nil {
		return nil, nil, eris.Wrap(err, "harmonize: decode UN members list")
	}
	members := membersFromRecords(records)

	if err := writeMembersCSV(csvPath, members); err != nil {
		zap.L().Warn("members cache not written", zap.Error(err))
	}
	return members, records, nil
}

func decodeCountries(ctx context.Context, r io.Reader) ([]countryRecord, error) {
	items, errCh := fetcher.DecodeJSONArray[countryRecord](ctx, r)

	var records []countryRecord
	for c := range items {
		records = append(records, c)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return records, nil
}

func membersFromRecords(records []countryRecord) []Member {
	var members []Member
	for _, c := range records {
		if !c.UNMember || c.CCA3 == "" {
			continue
		}
		members = append(members, Member{
			ISO3:     strings.ToUpper(c.CCA3),
			Name:     c.Name.Common,
			Official: c.Name.Official,
		})
	}
	return members
}

// readMembersCSV loads a members file with a required iso3 column and
// optional name and official columns.
func readMembersCSV(path string) ([]Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "harmonize: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "harmonize: read %s", path)
	}
	if len(all) == 0 {
		return nil, eris.Errorf("harmonize: %s is empty", path)
	}

	isoIdx, nameIdx, officialIdx := -1, -1, -1
	for i, h := range all[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "iso3":
			isoIdx = i
		case "name":
			nameIdx = i
		case "official":
			officialIdx = i
		}
	}
	if isoIdx < 0 {
		return nil, eris.Errorf("harmonize: %s must include an iso3 column", path)
	}

	var members []Member
	for _, rec := range all[1:] {
		if isoIdx >= len(rec) {
			continue
		}
		iso3 := strings.ToUpper(strings.TrimSpace(rec[isoIdx]))
		if iso3 == "" {
			continue
		}
		m := Member{ISO3: iso3}
		if nameIdx >= 0 && nameIdx < len(rec) {
			m.Name = strings.TrimSpace(rec[nameIdx])
		}
		if officialIdx >= 0 && officialIdx < len(rec) {
			m.Official = strings.TrimSpace(rec[officialIdx])
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		return nil, eris.Errorf("harmonize: %s has no member rows", path)
	}
	return members, nil
}

func writeMembersCSV(path string, members []Member) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "harmonize: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"iso3", "name", "official"}); err != nil {
		return eris.Wrap(err, "harmonize: write members header")
	}
	for _, m := range members {
		if err := cw.Write([]string{m.ISO3, m.Name, m.Official}); err != nil {
			return eris.Wrap(err, "harmonize: write members row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "harmonize: flush members cache")
}
