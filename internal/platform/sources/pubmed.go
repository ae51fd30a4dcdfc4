package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PubMedResearch summarizes the published evidence for one drug.
type PubMedResearch struct {
	TotalStudies         int     `json:"total_studies"`
	PregnancyStudies     int     `json:"pregnancy_studies"`
	BreastfeedingStudies int     `json:"breastfeeding_studies"`
	HasMetaAnalysis      bool    `json:"has_meta_analysis"`
	HasRCT               bool    `json:"has_rct"`
	RecentStudies        []Study `json:"recent_studies"`
}

type Study struct {
	PMID    string `json:"pmid"`
	Title   string `json:"title"`
	Year    string `json:"year"`
	Journal string `json:"journal"`
}

// ResearchSummary gathers pregnancy and lactation study counts plus the
// five most recent study summaries for a drug.
func (c *Client) ResearchSummary(ctx context.Context, drugName string) (*PubMedResearch, error) {
	key := "pubmed:" + strings.ToLower(drugName)
	var cached PubMedResearch
	if c.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	pregnancy, err := c.studyCount(ctx, drugName+" AND (pregnancy OR pregnant)")
	if err != nil {
		return nil, err
	}
	breastfeeding, err := c.studyCount(ctx, drugName+" AND (breastfeeding OR lactation)")
	if err != nil {
		return nil, err
	}
	meta, err := c.studyCount(ctx, drugName+" AND meta-analysis")
	if err != nil {
		return nil, err
	}
	rct, err := c.studyCount(ctx, drugName+" AND randomized controlled trial")
	if err != nil {
		return nil, err
	}
	recent, err := c.recentStudies(ctx, drugName+" AND (pregnancy OR breastfeeding OR lactation)", 5)
	if err != nil {
		return nil, err
	}

	research := &PubMedResearch{
		TotalStudies:         pregnancy + breastfeeding,
		PregnancyStudies:     pregnancy,
		BreastfeedingStudies: breastfeeding,
		HasMetaAnalysis:      meta > 0,
		HasRCT:               rct > 0,
		RecentStudies:        recent,
	}
	c.cachePut(ctx, key, research)
	return research, nil
}

// studyCount asks esearch for the match count only.
func (c *Client) studyCount(ctx context.Context, query string) (int, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmode", "json")
	params.Set("retmax", "0")

	// The count comes back as a JSON string.
	var payload struct {
		Result struct {
			Count string `json:"count"`
		} `json:"esearchresult"`
	}
	found, err := c.getJSON(ctx, c.pubmedURL+"/esearch.fcgi?"+params.Encode(), &payload)
	if err != nil {
		return 0, fmt.Errorf("pubmed: %w", err)
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.Atoi(payload.Result.Count)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (c *Client) recentStudies(ctx context.Context, query string, limit int) ([]Study, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("sort", "date")

	var search struct {
		Result struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	found, err := c.getJSON(ctx, c.pubmedURL+"/esearch.fcgi?"+params.Encode(), &search)
	if err != nil {
		return nil, fmt.Errorf("pubmed: %w", err)
	}
	if !found || len(search.Result.IDList) == 0 {
		return nil, nil
	}

	sumParams := url.Values{}
	sumParams.Set("db", "pubmed")
	sumParams.Set("id", strings.Join(search.Result.IDList, ","))
	sumParams.Set("retmode", "json")

	// The result object mixes per-PMID entries with a "uids" array, so it
	// cannot decode into one uniform map value type.
	var summaries struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	found, err = c.getJSON(ctx, c.pubmedURL+"/esummary.fcgi?"+sumParams.Encode(), &summaries)
	if err != nil {
		return nil, fmt.Errorf("pubmed: %w", err)
	}
	if !found {
		return nil, nil
	}

	var studies []Study
	for _, pmid := range search.Result.IDList {
		raw, ok := summaries.Result[pmid]
		if !ok {
			continue
		}
		var s struct {
			Title   string `json:"title"`
			PubDate string `json:"pubdate"`
			Source  string `json:"source"`
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		studies = append(studies, Study{
			PMID:    pmid,
			Title:   s.Title,
			Year:    firstField(s.PubDate),
			Journal: s.Source,
		})
	}
	return studies, nil
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
