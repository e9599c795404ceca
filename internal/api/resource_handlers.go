package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/openbay/openbay-node/internal/catalog"
	"github.com/openbay/openbay-node/internal/domain"
)

func (s *Server) registerResourceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listResources",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources",
		Summary:     "List resources",
		Description: "Returns displayable resources, newest first, with their feedback",
		Tags:        []string{"Resources"},
	}, s.handleListResources)

	huma.Register(s.api, huma.Operation{
		OperationID:   "publishResource",
		Method:        http.MethodPost,
		Path:          "/api/v1/resources",
		Summary:       "Publish resource",
		Description:   "Publishes a resource under the current identity",
		Tags:          []string{"Resources"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handlePublishResource)

	huma.Register(s.api, huma.Operation{
		OperationID: "getResource",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/{id}",
		Summary:     "Get resource",
		Description: "Returns a resource by ID",
		Tags:        []string{"Resources"},
	}, s.handleGetResource)

	huma.Register(s.api, huma.Operation{
		OperationID:   "retractResource",
		Method:        http.MethodDelete,
		Path:          "/api/v1/resources/{id}",
		Summary:       "Retract resource",
		Description:   "Retracts a resource owned by the current identity",
		Tags:          []string{"Resources"},
		DefaultStatus: http.StatusAccepted,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleRetractResource)

	huma.Register(s.api, huma.Operation{
		OperationID: "getFeedback",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/{id}/feedback",
		Summary:     "Get feedback",
		Description: "Returns the vote tally and the current identity's vote",
		Tags:        []string{"Feedback"},
	}, s.handleGetFeedback)

	huma.Register(s.api, huma.Operation{
		OperationID: "voteResource",
		Method:      http.MethodPost,
		Path:        "/api/v1/resources/{id}/vote",
		Summary:     "Vote",
		Description: "Casts a vote. Repeating the current vote retracts it",
		Tags:        []string{"Feedback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleVote)
}

// === DTOs ===

// ResourceResponse is one catalog row.
type ResourceResponse struct {
	ID          string       `json:"id" doc:"Resource ID"`
	Name        string       `json:"name" doc:"Display name"`
	Magnet      string       `json:"magnet" doc:"Magnet link"`
	Category    string       `json:"category" doc:"Category"`
	Size        string       `json:"size,omitempty" doc:"Free-form size"`
	Description string       `json:"description,omitempty" doc:"Description"`
	UploadedAt  time.Time    `json:"uploaded_at" doc:"Publication time"`
	UploadedBy  string       `json:"uploaded_by" doc:"Publisher alias"`
	OwnerPub    string       `json:"owner_pub" doc:"Publisher public key"`
	Tally       domain.Tally `json:"tally" doc:"Vote tally"`
	MyVote      string       `json:"my_vote,omitempty" doc:"Current identity's vote: up, down, or empty"`
	IsOwner     bool         `json:"is_owner" doc:"Whether the current identity published this resource"`
}

// ListResourcesInput contains list filters.
type ListResourcesInput struct {
	Authorization string `header:"Authorization"`
	Category      string `query:"category" doc:"Only this category (video, audio, software, games, other)"`
	Search        string `query:"q" doc:"Case-insensitive match on name or description"`
}

// ListResourcesResponse contains catalog rows.
type ListResourcesResponse struct {
	Resources []ResourceResponse `json:"resources" doc:"Matching resources"`
	Count     int                `json:"count" doc:"Number of resources returned"`
}

// ListResourcesOutput wraps the list response for Huma.
type ListResourcesOutput struct {
	Body ListResourcesResponse
}

// PublishResourceRequest is the request body for publishing.
type PublishResourceRequest struct {
	Name        string `json:"name" doc:"Display name"`
	Magnet      string `json:"magnet" doc:"Magnet link (magnet:?xt=urn:<namespace>:<hash>)"`
	Category    string `json:"category,omitempty" doc:"Category; unknown values become other"`
	Size        string `json:"size,omitempty" doc:"Free-form size"`
	Description string `json:"description,omitempty" doc:"Description"`
}

// PublishResourceInput wraps the publish request for Huma.
type PublishResourceInput struct {
	Authorization string `header:"Authorization"`
	Body          PublishResourceRequest
}

// CommandResponse acknowledges an accepted command. The authoritative write
// completes asynchronously; failures arrive as write.failed events.
type CommandResponse struct {
	ID      string `json:"id" doc:"Resource ID"`
	Pending bool   `json:"pending" doc:"Whether the write is still in flight"`
}

// CommandOutput wraps a command response for Huma.
type CommandOutput struct {
	Body CommandResponse
}

// ResourceIDInput addresses one resource.
type ResourceIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Resource ID"`
}

// ResourceOutput wraps a single resource for Huma.
type ResourceOutput struct {
	Body ResourceResponse
}

// FeedbackResponse is the feedback for one resource.
type FeedbackResponse struct {
	ResourceID string       `json:"resource_id" doc:"Resource ID"`
	Tally      domain.Tally `json:"tally" doc:"Vote tally"`
	MyVote     string       `json:"my_vote,omitempty" doc:"Current identity's vote"`
}

// FeedbackOutput wraps feedback for Huma.
type FeedbackOutput struct {
	Body FeedbackResponse
}

// VoteRequest is the request body for voting.
type VoteRequest struct {
	Direction string `json:"direction" doc:"up or down"`
}

// VoteInput wraps the vote request for Huma.
type VoteInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Resource ID"`
	Body          VoteRequest
}

// === Handlers ===

func (s *Server) handleListResources(ctx context.Context, input *ListResourcesInput) (*ListResourcesOutput, error) {
	ctx, err := s.withIdentity(ctx, input.Authorization)
	if err != nil {
		return nil, apiError(err)
	}

	filter := catalog.Filter{Search: input.Search}
	if strings.TrimSpace(input.Category) != "" {
		filter.Category = domain.ParseCategory(input.Category)
	}

	records := s.catalog.List(ctx, filter)
	rows := make([]ResourceResponse, len(records))
	for i := range records {
		rows[i] = s.resourceResponse(ctx, &records[i])
	}

	return &ListResourcesOutput{Body: ListResourcesResponse{Resources: rows, Count: len(rows)}}, nil
}

func (s *Server) handlePublishResource(ctx context.Context, input *PublishResourceInput) (*CommandOutput, error) {
	ctx, err := s.withIdentity(ctx, input.Authorization)
	if err != nil {
		return nil, apiError(err)
	}

	resourceID, err := s.catalog.Publish(ctx, catalog.ResourceFields{
		Name:        input.Body.Name,
		Magnet:      input.Body.Magnet,
		Category:    input.Body.Category,
		Size:        input.Body.Size,
		Description: input.Body.Description,
	}, nil)
	if err != nil {
		return nil, apiError(err)
	}

	return &CommandOutput{Body: CommandResponse{ID: resourceID, Pending: true}}, nil
}

func (s *Server) handleGetResource(ctx context.Context, input *ResourceIDInput) (*ResourceOutput, error) {
	ctx, err := s.withIdentity(ctx, input.Authorization)
	if err != nil {
		return nil, apiError(err)
	}

	record, err := s.catalog.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}

	return &ResourceOutput{Body: s.resourceResponse(ctx, &record)}, nil
}

func (s *Server) handleRetractResource(ctx context.Context, input *ResourceIDInput) (*CommandOutput, error) {
	ctx, err := s.withIdentity(ctx, input.Authorization)
	if err != nil {
		return nil, apiError(err)
	}

	if err := s.catalog.Retract(ctx, input.ID, nil); err != nil {
		return nil, apiError(err)
	}

	return &CommandOutput{Body: CommandResponse{ID: input.ID, Pending: true}}, nil
}

func (s *Server) handleGetFeedback(ctx context.Context, input *ResourceIDInput) (*FeedbackOutput, error) {
	ctx, err := s.withIdentity(ctx, input.Authorization)
	if err != nil {
		return nil, apiError(err)
	}
	return &FeedbackOutput{Body: s.feedbackResponse(ctx, input.ID)}, nil
}

func (s *Server) handleVote(ctx context.Context, input *VoteInput) (*FeedbackOutput, error) {
	ctx, err := s.withIdentity(ctx, input.Authorization)
	if err != nil {
		return nil, apiError(err)
	}

	if err := s.catalog.Vote(ctx, input.ID, domain.Direction(input.Body.Direction), nil); err != nil {
		return nil, apiError(err)
	}

	// The vote is already applied locally, so this reflects it.
	return &FeedbackOutput{Body: s.feedbackResponse(ctx, input.ID)}, nil
}

func (s *Server) resourceResponse(ctx context.Context, r *domain.Resource) ResourceResponse {
	ident, _ := s.catalog.CurrentIdentity(ctx)
	return ResourceResponse{
		ID:          r.ID,
		Name:        r.Name,
		Magnet:      r.Magnet,
		Category:    string(r.Category),
		Size:        r.Size,
		Description: r.Description,
		UploadedAt:  r.UploadedAt,
		UploadedBy:  r.UploadedBy,
		OwnerPub:    r.OwnerPub,
		Tally:       s.catalog.Tally(r.ID),
		MyVote:      string(s.catalog.MyVote(ctx, r.ID)),
		IsOwner:     r.OwnedBy(ident),
	}
}

func (s *Server) feedbackResponse(ctx context.Context, resourceID string) FeedbackResponse {
	return FeedbackResponse{
		ResourceID: resourceID,
		Tally:      s.catalog.Tally(resourceID),
		MyVote:     string(s.catalog.MyVote(ctx, resourceID)),
	}
}
