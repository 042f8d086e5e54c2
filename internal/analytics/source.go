package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"

	"google.golang.org/api/analyticsdata/v1beta"
)

// Source yields per-question page-view counts from an external analytics
// system. Each question id is reported at most once per run; questions with
// zero views may be omitted entirely.
type Source interface {
	PageviewsByQuestion(ctx context.Context, fn func(questionID, visits int) error) error
}

// Question detail page paths, with or without a leading locale segment.
var questionPathPattern = regexp.MustCompile(`^(?:/[A-Za-z-]+)?/questions/(\d+)/?$`)

// GA4Source pulls question pageviews from the Google Analytics Data API.
type GA4Source struct {
	svc       *analyticsdata.Service
	property  string
	startDate string
	pageSize  int64
}

// NewGA4Source builds a source for the property in GA4_PROPERTY_ID, using
// application default credentials.
func NewGA4Source(ctx context.Context) (*GA4Source, error) {
	property := os.Getenv("GA4_PROPERTY_ID")
	if property == "" {
		return nil, fmt.Errorf("GA4_PROPERTY_ID environment variable not set")
	}

	svc, err := analyticsdata.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics data service: %w", err)
	}

	startDate := os.Getenv("GA4_START_DATE")
	if startDate == "" {
		startDate = "30daysAgo"
	}

	return &GA4Source{
		svc:       svc,
		property:  property,
		startDate: startDate,
		pageSize:  100000,
	}, nil
}

// PageviewsByQuestion pages through a pagePath/screenPageViews report,
// aggregates rows per question id (a question can appear under several
// locale-prefixed paths) and streams the totals.
func (s *GA4Source) PageviewsByQuestion(ctx context.Context, fn func(questionID, visits int) error) error {
	visitsByID := make(map[int]int)

	var offset int64
	for {
		req := &analyticsdata.RunReportRequest{
			DateRanges: []*analyticsdata.DateRange{
				{StartDate: s.startDate, EndDate: "today"},
			},
			Dimensions: []*analyticsdata.Dimension{{Name: "pagePath"}},
			Metrics:    []*analyticsdata.Metric{{Name: "screenPageViews"}},
			DimensionFilter: &analyticsdata.FilterExpression{
				Filter: &analyticsdata.Filter{
					FieldName: "pagePath",
					StringFilter: &analyticsdata.StringFilter{
						MatchType: "PARTIAL_REGEXP",
						Value:     `/questions/\d+`,
					},
				},
			},
			Limit:  s.pageSize,
			Offset: offset,
		}

		resp, err := s.svc.Properties.RunReport("properties/"+s.property, req).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("run GA4 report: %w", err)
		}

		for _, row := range resp.Rows {
			if len(row.DimensionValues) == 0 || len(row.MetricValues) == 0 {
				continue
			}
			m := questionPathPattern.FindStringSubmatch(row.DimensionValues[0].Value)
			if m == nil {
				continue
			}
			id, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			views, err := strconv.Atoi(row.MetricValues[0].Value)
			if err != nil {
				continue
			}
			visitsByID[id] += views
		}

		if int64(len(resp.Rows)) < s.pageSize {
			break
		}
		offset += s.pageSize
	}

	slog.Info("gathered pageviews from GA4", "questions", len(visitsByID))

	for id, visits := range visitsByID {
		if err := fn(id, visits); err != nil {
			return err
		}
	}
	return nil
}
