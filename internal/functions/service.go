package functions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mailhook/internal/registry/models"
	"mailhook/internal/registry/store"
	dErrors "mailhook/pkg/domain-errors"
	"mailhook/pkg/sentinel"
)

// Service manages the function attached to a registered domain. The script
// lives on the hosting platform; the registry's FunctionRef is the record of
// what is deployed.
type Service struct {
	domains  store.Store
	platform Platform
	logger   *slog.Logger
}

func NewService(domains store.Store, platform Platform, logger *slog.Logger) *Service {
	return &Service{domains: domains, platform: platform, logger: logger}
}

// PutRequest creates or updates a domain's function.
type PutRequest struct {
	Code        string `json:"code"`
	Enabled     bool   `json:"enabled"`
	Environment string `json:"environment"`
}

// Info is the function state returned to API callers.
type Info struct {
	Ref     models.FunctionRef `json:"function"`
	Code    string             `json:"code,omitempty"`
	Details *ScriptDetails     `json:"details,omitempty"`
}

// scriptName derives the platform script name from the domain. Deterministic
// so redeploys for a domain always target the same script.
func scriptName(domain string) string {
	name := "fn-" + strings.ReplaceAll(domain, ".", "-")
	if len(name) > 54 {
		name = name[:54]
	}
	return name
}

// Put deploys the function code and records the reference on the domain.
// It returns the stored reference and whether the function was newly created.
func (s *Service) Put(ctx context.Context, domain string, req PutRequest) (*models.FunctionRef, bool, error) {
	record, err := s.getDomain(ctx, domain)
	if err != nil {
		return nil, false, err
	}

	created := record.Function == nil
	if !created && req.Code == "" {
		return nil, false, dErrors.New(dErrors.CodeBadRequest, "function code is required")
	}
	environment := strings.ToLower(req.Environment)
	if environment == "" {
		environment = "production"
	}

	name := scriptName(record.Domain)
	if err := s.platform.UploadScript(ctx, name, req.Code); err != nil {
		return nil, false, platformError("upload function code", err)
	}
	deploymentID, err := s.platform.Deploy(ctx, name, environment)
	if err != nil {
		return nil, false, platformError("deploy function", err)
	}
	s.logger.InfoContext(ctx, "function deployed",
		"domain", record.Domain,
		"script", name,
		"environment", environment,
		"deployment_id", deploymentID,
	)

	record.Function = &models.FunctionRef{
		CodeRef:     name,
		InvokeURL:   s.platform.InvokeURL(name),
		Environment: environment,
		Enabled:     req.Enabled,
	}
	record.UpdatedAt = time.Now().UTC()
	if err := s.domains.Update(ctx, record); err != nil {
		return nil, false, fmt.Errorf("store function ref: %w", err)
	}
	return record.Function, created, nil
}

// Get returns the stored reference enriched with the live script content and
// platform details. Platform lookups are best effort: the reference is the
// source of truth.
func (s *Service) Get(ctx context.Context, domain string) (*Info, error) {
	record, err := s.getDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if record.Function == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no function configured for domain")
	}

	info := &Info{Ref: *record.Function}
	if code, err := s.platform.ScriptContent(ctx, record.Function.CodeRef); err != nil {
		s.logger.WarnContext(ctx, "failed to fetch function code",
			"domain", record.Domain, "error", err.Error())
	} else {
		info.Code = code
	}
	if details, err := s.platform.ScriptDetails(ctx, record.Function.CodeRef); err != nil {
		s.logger.WarnContext(ctx, "failed to fetch function details",
			"domain", record.Domain, "error", err.Error())
	} else {
		info.Details = details
	}
	return info, nil
}

// SetEnabled toggles invocation without touching the deployed code.
func (s *Service) SetEnabled(ctx context.Context, domain string, enabled bool) (*models.FunctionRef, error) {
	record, err := s.getDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if record.Function == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no function configured for domain")
	}

	record.Function.Enabled = enabled
	record.UpdatedAt = time.Now().UTC()
	if err := s.domains.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("store function ref: %w", err)
	}
	return record.Function, nil
}

// Delete removes the script from the platform and clears the reference.
func (s *Service) Delete(ctx context.Context, domain string) error {
	record, err := s.getDomain(ctx, domain)
	if err != nil {
		return err
	}
	if record.Function == nil {
		return dErrors.New(dErrors.CodeNotFound, "no function configured for domain")
	}

	if err := s.platform.DeleteScript(ctx, record.Function.CodeRef); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return platformError("delete function", err)
	}
	record.Function = nil
	record.UpdatedAt = time.Now().UTC()
	if err := s.domains.Update(ctx, record); err != nil {
		return fmt.Errorf("clear function ref: %w", err)
	}
	return nil
}

func (s *Service) getDomain(ctx context.Context, domain string) (*models.DomainRecord, error) {
	normalized := models.NormalizeDomain(domain)
	if !models.ValidDomain(normalized) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid domain")
	}
	record, err := s.domains.Get(ctx, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "domain is not registered")
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return record, nil
}

func platformError(action string, err error) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(dErrors.CodeUpstreamUnavailable, action+" failed", err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
