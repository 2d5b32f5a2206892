// -----------------------------------------------------------------------
// Extraction Service - LLM summarisation and structured field extraction
// -----------------------------------------------------------------------

package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
)

var _ interfaces.ExtractionService = (*Service)(nil)

// Service implements the ExtractionService interface. Each extraction takes
// two LLM calls: a bounded Spanish summary, then a fixed-schema JSON fields
// object run through the recovery chain and the vocabulary normalizers.
type Service struct {
	llm         interfaces.LLMService
	extractions interfaces.ExtractionStorage
	grants      interfaces.GrantStorage
	logger      arbor.ILogger
	retry       common.RetryConfig
}

// NewService creates a new extraction service
func NewService(llmService interfaces.LLMService, extractions interfaces.ExtractionStorage, grants interfaces.GrantStorage, logger arbor.ILogger) *Service {
	return &Service{
		llm:         llmService,
		extractions: extractions,
		grants:      grants,
		logger:      logger,
		retry: common.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      0.2,
		},
	}
}

// ExtractFields runs the summary and fields calls for one extraction and
// persists the result. An unparseable fields response is stored with empty
// fields, zero confidence, and the model tag unset so a later run can retry;
// a persistent LLM transport failure records extraction_error and returns it.
func (s *Service) ExtractFields(ctx context.Context, extraction *models.Extraction) (*models.Extraction, error) {
	if strings.TrimSpace(extraction.ExtractedText) == "" {
		return nil, fmt.Errorf("extraction %s has no text to process", extraction.ID)
	}

	modelTag := s.llm.ModelName()
	start := time.Now()

	summary, err := s.generateSummary(ctx, extraction)
	if err != nil {
		s.recordFailure(extraction, fmt.Sprintf("summary call failed: %v", err))
		return nil, fmt.Errorf("summary generation failed for %s: %w", extraction.ExternalID, err)
	}

	fieldsResponse, err := s.generateFields(ctx, extraction)
	if err != nil {
		s.recordFailure(extraction, fmt.Sprintf("fields call failed: %v", err))
		return nil, fmt.Errorf("fields extraction failed for %s: %w", extraction.ExternalID, err)
	}

	obj, step := RecoverJSON(fieldsResponse)
	if step == RecoveryUnrecoverable {
		// Fields stay empty and the model tag stays unset so the item
		// remains eligible for a later llm run
		s.logger.Warn().
			Str("external_id", extraction.ExternalID).
			Int("response_length", len(fieldsResponse)).
			Msg("LLM fields response unrecoverable")
		return s.extractions.UpsertExtractionFields(extraction.ID, models.ExtractionFields{}, "", 0, summary, "llm fields response is not parseable JSON")
	}

	fields := MapFields(obj)
	Normalize(&fields)
	confidence := ComputeConfidence(summary)

	updated, err := s.extractions.UpsertExtractionFields(extraction.ID, fields, modelTag, confidence, summary, "")
	if err != nil {
		return nil, fmt.Errorf("failed to persist extraction fields: %w", err)
	}

	if err := s.backfillGrantSectors(updated); err != nil {
		s.logger.Warn().Err(err).Str("external_id", extraction.ExternalID).Msg("Failed to back-fill grant sectors")
	}

	s.logger.Info().
		Str("external_id", extraction.ExternalID).
		Str("model", modelTag).
		Str("recovery", string(step)).
		Float64("confidence", confidence).
		Dur("duration", time.Since(start)).
		Msg("Extraction fields completed")

	return updated, nil
}

func (s *Service) generateSummary(ctx context.Context, extraction *models.Extraction) (string, error) {
	system, user := BuildSummaryPrompt(extraction.ExternalID, extraction.ExtractedText)

	var summary string
	err := common.Retry(ctx, s.retry, func() error {
		response, err := s.llm.Chat(ctx, []interfaces.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		})
		if err != nil {
			return err
		}
		response = strings.TrimSpace(response)
		if len(response) < minSummaryChars {
			return fmt.Errorf("summary too short (%d chars)", len(response))
		}
		summary = response
		return nil
	})
	return summary, err
}

func (s *Service) generateFields(ctx context.Context, extraction *models.Extraction) (string, error) {
	system, user := BuildFieldsPrompt(extraction.ExternalID, extraction.ExtractedText)

	var response string
	err := common.Retry(ctx, s.retry, func() error {
		result, err := s.llm.Chat(ctx, []interfaces.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		})
		if err != nil {
			return err
		}
		response = result
		return nil
	})
	return response, err
}

// recordFailure stores the error message without touching fields or the
// model tag, keeping the extraction eligible for a later run
func (s *Service) recordFailure(extraction *models.Extraction, message string) {
	_, err := s.extractions.UpsertExtractionFields(extraction.ID, extraction.Fields,
		extraction.ExtractionModel, extraction.ExtractionConfidence, "", message)
	if err != nil {
		s.logger.Error().Err(err).Str("extraction_id", extraction.ID).Msg("Failed to record extraction error")
	}
}

// backfillGrantSectors copies the inferred sector labels onto the grant when
// the grant has none of its own. The grant's registry-derived list is the
// source of truth and is never overwritten.
func (s *Service) backfillGrantSectors(extraction *models.Extraction) error {
	if len(extraction.Fields.SectorsInferred) == 0 {
		return nil
	}

	grant, err := s.grants.GetGrant(extraction.GrantID)
	if err != nil {
		return err
	}
	if len(grant.SectoresNormalizados) > 0 {
		return nil
	}

	grant.SectoresNormalizados = extraction.Fields.SectorsInferred
	_, err = s.grants.UpsertGrant(grant)
	return err
}
