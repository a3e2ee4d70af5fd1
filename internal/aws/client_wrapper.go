package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/time/rate"

	"github.com/yourusername/cloudcity/internal/apperr"
	cfgpkg "github.com/yourusername/cloudcity/internal/config"
	"github.com/yourusername/cloudcity/internal/discovery"
	"github.com/yourusername/cloudcity/internal/logger"
)

// ErrAccountMismatch is returned when the assumed credentials belong to an
// account other than the one the run names.
var ErrAccountMismatch = errors.New("credentials belong to a different account")

// defaultRegion seeds the base config; every client overrides it per region
const defaultRegion = "us-east-1"

// Factory builds a Provider per discovery run
type Factory struct {
	settings cfgpkg.AWSConfig
	logger   *logger.Logger

	loadConfig func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error)
	newSTS     func(cfg aws.Config) STSAPI
	newClients func(cfg aws.Config) ClientSource
}

var _ discovery.ProviderFactory = (*Factory)(nil)

// NewFactory creates a factory using the default AWS credential chain
func NewFactory(settings cfgpkg.AWSConfig, log *logger.Logger) *Factory {
	if log == nil {
		log = logger.DefaultLogger
	}
	return &Factory{
		settings:   settings,
		logger:     log.WithFields(map[string]interface{}{"component": "aws-factory"}),
		loadConfig: config.LoadDefaultConfig,
		newSTS:     func(cfg aws.Config) STSAPI { return sts.NewFromConfig(cfg) },
		newClients: func(cfg aws.Config) ClientSource { return newSDKClients(cfg).forRegion },
	}
}

// ForRun loads the base configuration, assumes the run's role when one is
// given and verifies the account id when one is given. The credentials live
// only inside the returned provider.
func (f *Factory) ForRun(ctx context.Context, target discovery.Target) (discovery.Provider, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(defaultRegion),
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(so *retry.StandardOptions) {
				so.MaxAttempts = f.settings.MaxAttempts
			})
		}),
	}
	if f.settings.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(f.settings.Profile))
	}

	cfg, err := f.loadConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS config: %v", apperr.ErrProvider, err)
	}

	log := f.logger.WithFields(map[string]interface{}{"run_id": target.RunID})
	if target.RoleARN != "" {
		creds := stscreds.NewAssumeRoleProvider(f.newSTS(cfg), target.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "cloudcity-" + target.RunID
			if target.ExternalID != "" {
				o.ExternalID = aws.String(target.ExternalID)
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(creds)
		log.Info("using assumed role %s", target.RoleARN)
	}

	if target.AccountID != "" {
		out, err := f.newSTS(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return nil, wrapError("GetCallerIdentity", err)
		}
		if got := aws.ToString(out.Account); got != target.AccountID {
			return nil, fmt.Errorf("%w: %w: expected %s, got %s", apperr.ErrProvider, ErrAccountMismatch, target.AccountID, got)
		}
	}

	return NewProvider(f.newClients(cfg), f.limiter(), log), nil
}

func (f *Factory) limiter() *rate.Limiter {
	rps := f.settings.RequestsPerSecond
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
