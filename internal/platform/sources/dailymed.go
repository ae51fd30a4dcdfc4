package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DailyMed tags label sections with LOINC codes.
const (
	loincLactation      = "77306-9"
	loincNursingMothers = "34080-9"
)

// DailyMedSPL is the lactation-relevant slice of a Structured Product Label.
type DailyMedSPL struct {
	SetID         string  `json:"setid"`
	LactationText *string `json:"lactation_text"`
}

// SearchSPL finds the first Structured Product Label for a drug and pulls
// its lactation section. Returns (nil, nil) when DailyMed has no SPL.
func (c *Client) SearchSPL(ctx context.Context, drugName string) (*DailyMedSPL, error) {
	key := "dailymed:" + strings.ToLower(drugName)
	var cached DailyMedSPL
	if c.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	params := url.Values{}
	params.Set("drug_name", drugName)

	var payload struct {
		Data []struct {
			SetID string `json:"setid"`
		} `json:"data"`
	}
	found, err := c.getJSON(ctx, c.dailymedURL+"/spls.json?"+params.Encode(), &payload)
	if err != nil {
		return nil, fmt.Errorf("dailymed: %w", err)
	}
	if !found || len(payload.Data) == 0 {
		return nil, nil
	}

	spl, err := c.fetchSPL(ctx, payload.Data[0].SetID)
	if err != nil {
		return nil, err
	}
	if spl != nil {
		c.cachePut(ctx, key, spl)
	}
	return spl, nil
}

func (c *Client) fetchSPL(ctx context.Context, setid string) (*DailyMedSPL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dailymedURL+"/spls/"+setid+".xml", nil)
	if err != nil {
		return nil, fmt.Errorf("dailymed: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dailymed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	// Prefer the PLLR lactation section; older labels only carry the
	// nursing-mothers section.
	texts := extractSectionTexts(resp.Body, loincLactation, loincNursingMothers)
	spl := &DailyMedSPL{SetID: setid}
	if text, ok := texts[loincLactation]; ok {
		spl.LactationText = &text
	} else if text, ok := texts[loincNursingMothers]; ok {
		spl.LactationText = &text
	}
	return spl, nil
}

// extractSectionTexts scans an SPL document for sections tagged with the
// given LOINC codes and returns each section's narrative text. Only the
// first occurrence per code is kept.
func extractSectionTexts(r io.Reader, codes ...string) map[string]string {
	wanted := make(map[string]bool, len(codes))
	for _, code := range codes {
		wanted[code] = true
	}
	found := make(map[string]string)

	dec := xml.NewDecoder(r)
	var pending string
	var collecting bool
	var depth int
	var buf strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "code":
				if collecting {
					break
				}
				for _, attr := range t.Attr {
					if attr.Name.Local != "code" || !wanted[attr.Value] {
						continue
					}
					if _, ok := found[attr.Value]; !ok {
						pending = attr.Value
					}
				}
			case "text":
				if collecting {
					depth++
				} else if pending != "" {
					collecting = true
					depth = 1
					buf.Reset()
				}
			}
		case xml.EndElement:
			if collecting && t.Name.Local == "text" {
				depth--
				if depth == 0 {
					collecting = false
					if text := squashSpace(buf.String()); text != "" {
						found[pending] = text
					}
					pending = ""
				}
			}
		case xml.CharData:
			if collecting {
				buf.Write(t)
			}
		}
	}
	return found
}

func squashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
