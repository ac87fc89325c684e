package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"tessera/internal/logger"
	"tessera/internal/models"
)

const bookingIndex = "bookings"

type Config struct {
	Enabled   bool
	Addresses []string
	Username  string
	Password  string
}

// BookingIndex mirrors bookings into Elasticsearch for the admin free-text
// search. It is strictly a secondary read path: Postgres stays the source of
// truth, and a nil index degrades search to database filtering.
type BookingIndex struct {
	client *elasticsearch.Client
}

func NewBookingIndex(cfg Config) (*BookingIndex, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	idx := &BookingIndex{client: es}
	if err := idx.ensureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return idx, nil
}

func (c *BookingIndex) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{bookingIndex},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		logger.Get().Info("Elasticsearch index already exists", "index", bookingIndex)
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":             map[string]interface{}{"type": "long"},
				"booking_code":   map[string]interface{}{"type": "keyword"},
				"user_id":        map[string]interface{}{"type": "long"},
				"event_id":       map[string]interface{}{"type": "long"},
				"zone_id":        map[string]interface{}{"type": "long"},
				"status":         map[string]interface{}{"type": "keyword"},
				"payment_status": map[string]interface{}{"type": "keyword"},
				"customer_email": map[string]interface{}{"type": "keyword"},
				"customer_name": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{
							"type":         "keyword",
							"ignore_above": 256,
						},
					},
				},
				"seats":      map[string]interface{}{"type": "keyword"},
				"expires_at": map[string]interface{}{"type": "date"},
				"created_at": map[string]interface{}{"type": "date"},
				"updated_at": map[string]interface{}{"type": "date"},
			},
		},
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: bookingIndex,
		Body:  strings.NewReader(string(mappingJSON)),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	logger.Get().Info("Created Elasticsearch index", "index", bookingIndex)
	return nil
}

// IndexBooking writes the current state of a booking to the index. Called on
// every lifecycle transition; failures are logged by the caller, never fatal.
func (c *BookingIndex) IndexBooking(ctx context.Context, booking *models.Booking) error {
	if c == nil {
		return nil
	}

	doc, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      bookingIndex,
		DocumentID: strconv.FormatInt(booking.ID, 10),
		Body:       strings.NewReader(string(doc)),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index booking: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index booking: %s", res.String())
	}

	return nil
}

// Search runs the admin free-text query, matching booking codes, customer
// names and emails, combined with the structured filter.
func (c *BookingIndex) Search(ctx context.Context, query string, filter *models.BookingFilter) ([]models.Booking, int, error) {
	if c == nil {
		return nil, 0, fmt.Errorf("search index is not configured")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	searchRequest := map[string]interface{}{
		"query": buildSearchQuery(query, filter),
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"from": (page - 1) * pageSize,
		"size": pageSize,
	}

	searchJSON, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{bookingIndex},
		Body:  strings.NewReader(string(searchJSON)),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Booking `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, 0, fmt.Errorf("failed to decode search response: %w", err)
	}

	bookings := make([]models.Booking, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		bookings[i] = hit.Source
	}

	return bookings, response.Hits.Total.Value, nil
}

func buildSearchQuery(query string, filter *models.BookingFilter) map[string]interface{} {
	var mustQueries []map[string]interface{}

	if query != "" {
		mustQueries = append(mustQueries, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"booking_code^3", "customer_email^2", "customer_name"},
			},
		})
	}
	if filter.EventID != 0 {
		mustQueries = append(mustQueries, map[string]interface{}{
			"term": map[string]interface{}{"event_id": filter.EventID},
		})
	}
	if filter.Status != "" {
		mustQueries = append(mustQueries, map[string]interface{}{
			"term": map[string]interface{}{"status": filter.Status},
		})
	}
	if filter.PaymentStatus != "" {
		mustQueries = append(mustQueries, map[string]interface{}{
			"term": map[string]interface{}{"payment_status": filter.PaymentStatus},
		})
	}

	if len(mustQueries) == 0 {
		return map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	return map[string]interface{}{
		"bool": map[string]interface{}{
			"must": mustQueries,
		},
	}
}
