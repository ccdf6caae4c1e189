package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/oauth2"
)

const (
	// DefaultEndpoint is the public GitHub GraphQL API endpoint.
	DefaultEndpoint = "https://api.github.com/graphql"

	// pageSize is the fixed repository connection page size.
	pageSize = 100
)

// SupportedAffiliations are the repository affiliation filters the API
// accepts for the viewer's repository connection.
var SupportedAffiliations = []string{"OWNER", "COLLABORATOR", "ORGANIZATION_MEMBER"}

const repoListQuery = `
query($first: Int!, $after: String, $affiliations: [RepositoryAffiliation]) {
	viewer {
		repositories(first: $first, after: $after, affiliations: $affiliations, ownerAffiliations: $affiliations) {
			totalCount
			pageInfo {
				endCursor
				hasNextPage
			}
			nodes {
				name
				url
			}
		}
	}
}`

// Repo is one catalog entry. Name is the repository's short name and doubles
// as the local directory name, URL is the canonical https clone url.
type Repo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Config is the catalog client configuration.
type Config struct {
	// Endpoint is the GraphQL API url, defaults to the public GitHub API.
	// Override it for GitHub Enterprise deployments.
	Endpoint string
	// Affiliations filters the catalog by the viewer's relation to the
	// repository, defaults to OWNER only.
	Affiliations []string
}

// Client lists the authenticated user's repositories.
type Client struct {
	endpoint     string
	affiliations []string
	hc           *http.Client
	log          *slog.Logger
}

// NewClient validates given config and returns a catalog client carrying the
// given token on every request.
func NewClient(ctx context.Context, token string, conf Config, log *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token must be provided")
	}
	if log == nil {
		log = slog.Default()
	}

	endpoint := conf.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	affiliations := slices.Clone(conf.Affiliations)
	if len(affiliations) == 0 {
		affiliations = []string{"OWNER"}
	}
	for i, affiliation := range affiliations {
		affiliations[i] = strings.ToUpper(affiliation)
		if !slices.Contains(SupportedAffiliations, affiliations[i]) {
			return nil, fmt.Errorf(
				"unsupported affiliation %q, supported values are %s",
				affiliation, strings.Join(SupportedAffiliations, ", "))
		}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})

	return &Client{
		endpoint:     endpoint,
		affiliations: affiliations,
		hc:           oauth2.NewClient(ctx, ts),
		log:          log,
	}, nil
}

// List retrieves the complete repository catalog, paginating until the API
// reports no further pages. The returned slice preserves API order.
func (c *Client) List(ctx context.Context) ([]Repo, error) {
	var repos []Repo
	var cursor *string

	for {
		page, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}

		for _, node := range page.Nodes {
			if node != nil {
				repos = append(repos, *node)
			}
		}

		c.log.Info("fetched repositories", "fetched", len(repos), "total", page.TotalCount)

		if !page.PageInfo.HasNextPage {
			return repos, nil
		}
		if page.PageInfo.EndCursor == "" {
			return nil, &TransportError{Err: fmt.Errorf("api reported more pages without an end cursor")}
		}
		cursor = &page.PageInfo.EndCursor
	}
}

type pageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

type repositoryPage struct {
	TotalCount int      `json:"totalCount"`
	PageInfo   pageInfo `json:"pageInfo"`
	Nodes      []*Repo  `json:"nodes"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data struct {
		Viewer struct {
			Repositories *repositoryPage `json:"repositories"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// fetchPage requests a single page of the repository connection starting
// after the given cursor (nil for the first page).
func (c *Client) fetchPage(ctx context.Context, cursor *string) (*repositoryPage, error) {
	reqBody, err := json.Marshal(graphQLRequest{
		Query: repoListQuery,
		Variables: map[string]any{
			"first":        pageSize,
			"after":        cursor,
			"affiliations": c.affiliations,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to marshal query err:%w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("unable to decode response err:%w", err)}
	}

	if len(envelope.Errors) > 0 {
		qErr := &QueryError{}
		for _, gqlErr := range envelope.Errors {
			qErr.Messages = append(qErr.Messages, gqlErr.Message)
		}
		return nil, qErr
	}

	// a 200 with no repository connection is not an empty catalog, an empty
	// catalog still carries totalCount and pageInfo
	if envelope.Data.Viewer.Repositories == nil {
		return nil, &TransportError{Err: fmt.Errorf("response carries no repository data")}
	}

	return envelope.Data.Viewer.Repositories, nil
}
