package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/enrichtask"
)

var (
	runFile      string
	runCompany   string
	runWebsite   string
	runAccountID string
	runTenantID  string
	runJobID     string
)

// loadRunRequest builds a taskRequest from --file (a full JSON task
// request, for any enrichment_type) or, absent that, from the --company/
// --website/--account-id flags as a shortcut for a single company_info
// task, the same shape the teacher's run command builds from --url/--sf-id.
func loadRunRequest() (taskRequest, error) {
	if runFile != "" {
		f, err := os.Open(runFile)
		if err != nil {
			return taskRequest{}, eris.Wrap(err, "run: open request file")
		}
		defer f.Close()

		var req taskRequest
		if err := json.NewDecoder(f).Decode(&req); err != nil {
			return taskRequest{}, eris.Wrap(err, "run: decode request file")
		}
		return req, nil
	}

	if err := validateURL(runWebsite); err != nil {
		return taskRequest{}, err
	}

	taskCtx, err := json.Marshal(companyInfoContext{CompanyName: runCompany, WebsiteURL: runWebsite})
	if err != nil {
		return taskRequest{}, eris.Wrap(err, "run: marshal context")
	}

	req := taskRequest{
		TaskPayload: enrichment.TaskPayload{
			JobID:          runJobID,
			TenantID:       runTenantID,
			EnrichmentType: enrichment.TypeCompanyInfo,
			EntityIDs:      []string{runAccountID},
			ContextData:    map[string]json.RawMessage{runAccountID: taskCtx},
		},
	}
	req.Defaults()
	return req, nil
}

// writeRunResult prints the task's outcome as indented JSON, mirroring the
// teacher's writeRunResult.
func writeRunResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one enrichment task synchronously and print its result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		req, err := loadRunRequest()
		if err != nil {
			return err
		}
		if len(req.EntityIDs) == 0 {
			return enrichment.NewValidationError("run: entity_ids is required")
		}

		env, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		switch req.EnrichmentType {
		case enrichment.TypeCompanyInfo:
			return runSyncCompanyInfo(ctx, env, req.TaskPayload)
		case enrichment.TypeLeadLinkedInResearch:
			return runSyncLinkedInActivity(ctx, env, req.TaskPayload)
		case enrichment.TypeCustomColumn:
			return runSyncCustomColumn(ctx, env, req)
		default:
			return eris.Errorf("run: enrichment_type %q is not runnable from this command", req.EnrichmentType)
		}
	},
}

func runSyncCompanyInfo(ctx context.Context, env *engineEnv, payload enrichment.TaskPayload) error {
	accountID := payload.EntityIDs[0]
	var taskCtx companyInfoContext
	if raw, ok := payload.ContextData[accountID]; ok {
		if err := json.Unmarshal(raw, &taskCtx); err != nil {
			return eris.Wrap(err, "run: invalid company_info context_data")
		}
	}

	task := enrichtask.AccountEnhancementTask{
		JobID:       payload.JobID,
		TenantID:    payload.TenantID,
		AccountID:   accountID,
		CompanyName: taskCtx.CompanyName,
		WebsiteURL:  taskCtx.WebsiteURL,
	}
	info, err := env.AccountEnhancer.Run(ctx, task)
	if err != nil {
		return eris.Wrap(err, "run: company_info task")
	}
	zap.L().Info("company_info complete", zap.String("account_id", accountID))
	return writeRunResult(os.Stdout, info)
}

func runSyncLinkedInActivity(ctx context.Context, env *engineEnv, payload enrichment.TaskPayload) error {
	leadID := payload.EntityIDs[0]
	var taskCtx linkedInActivityContext
	if raw, ok := payload.ContextData[leadID]; ok {
		if err := json.Unmarshal(raw, &taskCtx); err != nil {
			return eris.Wrap(err, "run: invalid lead_linkedin_research context_data")
		}
	}
	if taskCtx.LinkedInURL == "" {
		return enrichment.NewValidationError("run: lead_linkedin_research requires a linkedin_url")
	}

	posts, comments, reactions, err := env.ActivityFetcher.FetchRawActivity(ctx, taskCtx.LinkedInURL)
	if err != nil {
		return eris.Wrap(err, "run: linkedin activity scrape")
	}

	task := enrichtask.LinkedInActivityTask{
		JobID:         payload.JobID,
		TenantID:      payload.TenantID,
		LeadID:        leadID,
		PostsHTML:     posts,
		CommentsHTML:  comments,
		ReactionsHTML: reactions,
	}
	insights, err := env.ActivityEnricher.Run(ctx, task)
	if err != nil {
		return eris.Wrap(err, "run: lead_linkedin_research task")
	}
	zap.L().Info("lead_linkedin_research complete", zap.String("lead_id", leadID))
	return writeRunResult(os.Stdout, insights)
}

func runSyncCustomColumn(ctx context.Context, env *engineEnv, req taskRequest) error {
	if req.Column == nil {
		return enrichment.NewValidationError("run: custom_column requests require a column")
	}

	outcome, err := env.ColumnRunner.Run(ctx, buildCustomColumnTask(req))
	if err != nil {
		return eris.Wrap(err, "run: custom_column task")
	}
	zap.L().Info("custom_column complete", zap.Int("values", len(outcome.Values)))
	return writeRunResult(os.Stdout, outcome)
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "path to a JSON task request (any enrichment_type)")
	runCmd.Flags().StringVar(&runCompany, "company", "", "company name (company_info shortcut)")
	runCmd.Flags().StringVar(&runWebsite, "website", "", "company website URL (company_info shortcut)")
	runCmd.Flags().StringVar(&runAccountID, "account-id", "", "account entity ID (company_info shortcut)")
	runCmd.Flags().StringVar(&runTenantID, "tenant-id", "", "tenant ID")
	runCmd.Flags().StringVar(&runJobID, "job-id", "", "job ID (left empty if omitted; no ID is generated)")
	rootCmd.AddCommand(runCmd)
}
