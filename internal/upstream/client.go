package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"example.com/league/internal/observability"
)

const listPageSize = 100

// Client implements Provider against the upstream's v3 HTTP API. The HTTP
// client timeout bounds every call independently of the effort retry policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client for the given API root, e.g.
// "https://api.example.com/v3".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListActivities pages through the athlete's activities overlapping
// [startEpoch, endEpoch]. An endEpoch of zero leaves the range open-ended.
// The upstream's `after`/`before` parameters are exclusive, so the bounds
// are widened by one second to keep the engine's inclusive-window contract.
func (c *Client) ListActivities(ctx context.Context, token string, startEpoch, endEpoch int64) ([]ActivitySummary, error) {
	var all []ActivitySummary
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("after", strconv.FormatInt(startEpoch-1, 10))
		if endEpoch > 0 {
			params.Set("before", strconv.FormatInt(endEpoch+1, 10))
		}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(listPageSize))

		var batch []ActivitySummary
		if err := c.getJSON(ctx, token, "/athlete/activities?"+params.Encode(), &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < listPageSize {
			return all, nil
		}
	}
}

// GetActivityDetail fetches one activity including all segment efforts.
func (c *Client) GetActivityDetail(ctx context.Context, token string, activityID int64) (*ActivityDetail, error) {
	var detail ActivityDetail
	path := fmt.Sprintf("/activities/%d?include_all_efforts=true", activityID)
	if err := c.getJSON(ctx, token, path, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordUpstreamError("transport")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		observability.RecordUpstreamError("unauthorized")
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		observability.RecordUpstreamError("transport")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream error: status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// UnmarshalJSON maps the upstream listing fields onto ActivitySummary.
func (s *ActivitySummary) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		StartDate string `json:"start_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ID = raw.ID
	s.Name = raw.Name
	s.StartDate = raw.StartDate
	return nil
}

// UnmarshalJSON maps the upstream detail payload onto ActivityDetail.
func (d *ActivityDetail) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      int64 `json:"id"`
		Athlete struct {
			ID int64 `json:"id"`
		} `json:"athlete"`
		Name           string `json:"name"`
		StartDate      string `json:"start_date"`
		DeviceName     string `json:"device_name"`
		SegmentEfforts []struct {
			ID      int64 `json:"id"`
			Segment struct {
				ID int64 `json:"id"`
			} `json:"segment"`
			StartDate   string `json:"start_date"`
			ElapsedTime int64  `json:"elapsed_time"`
			PRRank      *int   `json:"pr_rank"`
		} `json:"segment_efforts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.ID = raw.ID
	d.AthleteID = raw.Athlete.ID
	d.Name = raw.Name
	d.StartDate = raw.StartDate
	d.DeviceName = raw.DeviceName
	d.SegmentEfforts = make([]SegmentEffort, 0, len(raw.SegmentEfforts))
	for _, e := range raw.SegmentEfforts {
		d.SegmentEfforts = append(d.SegmentEfforts, SegmentEffort{
			ID:             e.ID,
			SegmentID:      e.Segment.ID,
			StartDate:      e.StartDate,
			ElapsedSeconds: e.ElapsedTime,
			PRRank:         e.PRRank,
		})
	}
	return nil
}
