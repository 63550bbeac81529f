package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crossorg/migrator/internal/domain"
)

const defaultAPIVersion = "v59.0"

// RESTConfig carries the connection settings for one org's data API.
type RESTConfig struct {
	InstanceURL string
	AccessToken string
	APIVersion  string
	HTTPClient  *http.Client
}

// RESTClient implements Client over the org's JSON data API.
type RESTClient struct {
	base    string
	token   string
	version string
	http    *http.Client
}

// NewRESTClient creates a data API client for one org.
func NewRESTClient(cfg RESTConfig) *RESTClient {
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &RESTClient{
		base:    strings.TrimSuffix(cfg.InstanceURL, "/"),
		token:   cfg.AccessToken,
		version: version,
		http:    client,
	}
}

type queryResponse struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

func (c *RESTClient) Query(ctx context.Context, soql string) (QueryResult, error) {
	endpoint := fmt.Sprintf("%s/services/data/%s/query?q=%s", c.base, c.version, url.QueryEscape(soql))
	var out queryResponse
	if _, err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return QueryResult{}, err
	}
	result := QueryResult{TotalSize: out.TotalSize, Records: out.Records}
	for _, record := range result.Records {
		delete(record, "attributes")
	}

	// Follow query locator pages so callers see the complete result set.
	next := out.NextRecordsURL
	for !out.Done && next != "" {
		out = queryResponse{}
		if _, err := c.do(ctx, http.MethodGet, c.base+next, nil, &out); err != nil {
			return QueryResult{}, err
		}
		for _, record := range out.Records {
			delete(record, "attributes")
			result.Records = append(result.Records, record)
		}
		next = out.NextRecordsURL
	}
	return result, nil
}

type describeResponse struct {
	Name   string `json:"name"`
	Fields []struct {
		Name              string   `json:"name"`
		Label             string   `json:"label"`
		Type              string   `json:"type"`
		Nillable          bool     `json:"nillable"`
		Createable        bool     `json:"createable"`
		Updateable        bool     `json:"updateable"`
		DefaultedOnCreate bool     `json:"defaultedOnCreate"`
		ReferenceTo       []string `json:"referenceTo"`
		PicklistValues    []struct {
			Value  string `json:"value"`
			Active bool   `json:"active"`
		} `json:"picklistValues"`
	} `json:"fields"`
}

func (c *RESTClient) Describe(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/%s/describe", c.base, c.version, url.PathEscape(objectType))
	var out describeResponse
	if _, err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return domain.ObjectSchema{}, err
	}

	schema := domain.ObjectSchema{
		ObjectType: out.Name,
		Fields:     make([]domain.FieldDescription, 0, len(out.Fields)),
	}
	for _, f := range out.Fields {
		field := domain.FieldDescription{
			Name:        f.Name,
			Label:       f.Label,
			Type:        domain.FieldType(strings.ToLower(f.Type)),
			Createable:  f.Createable,
			Updateable:  f.Updateable,
			Required:    f.Createable && !f.Nillable && !f.DefaultedOnCreate,
			ReferenceTo: append([]string(nil), f.ReferenceTo...),
		}
		for _, pv := range f.PicklistValues {
			if pv.Active {
				field.PicklistValues = append(field.PicklistValues, pv.Value)
			}
		}
		schema.Fields = append(schema.Fields, field)
	}
	return schema, nil
}

type saveResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Created bool   `json:"created"`
	Errors  []struct {
		Message   string   `json:"message"`
		ErrorCode string   `json:"statusCode"`
		Fields    []string `json:"fields"`
	} `json:"errors"`
}

func (c *RESTClient) Create(ctx context.Context, objectType string, record map[string]any) (SaveResult, error) {
	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/%s", c.base, c.version, url.PathEscape(objectType))
	var out saveResponse
	if _, err := c.do(ctx, http.MethodPost, endpoint, record, &out); err != nil {
		return SaveResult{}, err
	}
	result := toSaveResult(out)
	result.Created = true
	return result, nil
}

func (c *RESTClient) Upsert(ctx context.Context, objectType string, record map[string]any, externalIDField string) (SaveResult, error) {
	value, _ := record[externalIDField].(string)
	if value == "" {
		return SaveResult{}, &Error{Code: "INVALID_FIELD", Message: fmt.Sprintf("upsert requires a value for %s", externalIDField)}
	}
	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/%s/%s/%s",
		c.base, c.version, url.PathEscape(objectType), url.PathEscape(externalIDField), url.PathEscape(value))

	// The key travels in the URL, not the body.
	body := make(map[string]any, len(record))
	for k, v := range record {
		if k != externalIDField {
			body[k] = v
		}
	}
	var out saveResponse
	status, err := c.do(ctx, http.MethodPatch, endpoint, body, &out)
	if err != nil {
		return SaveResult{}, err
	}
	// 204 No Content (or any empty 2xx body) means the upsert matched and
	// updated an existing record rather than inserting a new one.
	if status == http.StatusNoContent || (out.ID == "" && !out.Success && len(out.Errors) == 0) {
		return SaveResult{Success: true, Created: false}, nil
	}
	return toSaveResult(out), nil
}

type bulkInsertRequest struct {
	AllOrNone bool             `json:"allOrNone"`
	Records   []map[string]any `json:"records"`
}

func (c *RESTClient) BulkInsert(ctx context.Context, objectType string, records []map[string]any) ([]SaveResult, error) {
	endpoint := fmt.Sprintf("%s/services/data/%s/composite/sobjects", c.base, c.version)
	payload := bulkInsertRequest{Records: make([]map[string]any, 0, len(records))}
	for _, record := range records {
		tagged := make(map[string]any, len(record)+1)
		for k, v := range record {
			tagged[k] = v
		}
		tagged["attributes"] = map[string]string{"type": objectType}
		payload.Records = append(payload.Records, tagged)
	}

	var out []saveResponse
	if _, err := c.do(ctx, http.MethodPost, endpoint, payload, &out); err != nil {
		return nil, err
	}
	results := make([]SaveResult, 0, len(out))
	for _, entry := range out {
		result := toSaveResult(entry)
		result.Created = result.Success
		results = append(results, result)
	}
	return results, nil
}

func toSaveResult(out saveResponse) SaveResult {
	result := SaveResult{ID: out.ID, Success: out.Success, Created: out.Created}
	if len(out.Errors) > 0 {
		result.Message = out.Errors[0].Message
		result.Code = out.Errors[0].ErrorCode
		result.Fields = append([]string(nil), out.Errors[0].Fields...)
	}
	return result
}

type apiError struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields"`
}

// do executes one API request and decodes the response body into out when
// one is present. The HTTP status is returned so callers can distinguish
// bodyless success responses (204) from decoded ones.
func (c *RESTClient) do(ctx context.Context, method, endpoint string, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErrs []apiError
		if json.Unmarshal(data, &apiErrs) == nil && len(apiErrs) > 0 {
			return resp.StatusCode, &Error{
				Code:    apiErrs[0].ErrorCode,
				Message: apiErrs[0].Message,
				Fields:  apiErrs[0].Fields,
			}
		}
		return resp.StatusCode, &Error{
			Code:    http.StatusText(resp.StatusCode),
			Message: strings.TrimSpace(string(data)),
		}
	}

	if out == nil || len(data) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
