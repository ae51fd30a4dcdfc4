package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// FDALabel carries the pregnancy and nursing sections of an openFDA drug
// label, reduced to the first entry of each repeated field.
type FDALabel struct {
	BrandNames        []string `json:"brand_names"`
	GenericNames      []string `json:"generic_names"`
	PregnancyCategory *string  `json:"pregnancy_category"`
	PregnancyText     *string  `json:"pregnancy_text"`
	BreastfeedingText *string  `json:"breastfeeding_text"`
	Warnings          *string  `json:"warnings"`
}

// GenericName returns the label's first generic name, if any.
func (l *FDALabel) GenericName() *string {
	return firstOrNil(l.GenericNames)
}

// SearchDrugLabel looks up the openFDA label for a drug by brand or generic
// name. Returns (nil, nil) when the registry has no record.
func (c *Client) SearchDrugLabel(ctx context.Context, drugName string) (*FDALabel, error) {
	key := "fda:" + strings.ToLower(drugName)
	var cached FDALabel
	if c.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	params := url.Values{}
	params.Set("search", fmt.Sprintf("(openfda.brand_name:%q OR openfda.generic_name:%q)", drugName, drugName))
	params.Set("limit", "1")

	var payload struct {
		Results []struct {
			OpenFDA struct {
				BrandName   []string `json:"brand_name"`
				GenericName []string `json:"generic_name"`
			} `json:"openfda"`
			PregnancyCategory []string `json:"pregnancy_category"`
			Pregnancy         []string `json:"pregnancy"`
			NursingMothers    []string `json:"nursing_mothers"`
			Warnings          []string `json:"warnings"`
		} `json:"results"`
	}
	found, err := c.getJSON(ctx, c.fdaURL+"?"+params.Encode(), &payload)
	if err != nil {
		return nil, fmt.Errorf("fda: %w", err)
	}
	// openFDA answers 404 for unmatched queries.
	if !found || len(payload.Results) == 0 {
		return nil, nil
	}

	r := payload.Results[0]
	label := &FDALabel{
		BrandNames:        r.OpenFDA.BrandName,
		GenericNames:      r.OpenFDA.GenericName,
		PregnancyCategory: firstOrNil(r.PregnancyCategory),
		PregnancyText:     firstOrNil(r.Pregnancy),
		BreastfeedingText: firstOrNil(r.NursingMothers),
		Warnings:          firstOrNil(r.Warnings),
	}
	c.cachePut(ctx, key, label)
	return label, nil
}
