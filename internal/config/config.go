// Package config loads service settings from the environment, an optional
// .env file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"deal-voice-notes/internal/archive"
)

const (
	BackendDrive = "drive"
	BackendGCS   = "gcs"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	Transcription Transcription
	Google        Google
	Archive       Archive
	CRM           CRM

	ScratchDir       string
	FFmpegPath       string
	MaxUploadMB      int64
	ConcurrentDecode bool
}

type Transcription struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

type Google struct {
	AuthMode           string
	ServiceAccountJSON string
	ServiceAccountFile string
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	RedirectURL        string
}

type Archive struct {
	Backend            string
	AudioFolderID      string
	TranscriptFolderID string
	Bucket             string
}

type CRM struct {
	Domain      string
	AccessToken string
}

// Load reads .env (if present) into the process environment, then resolves
// every setting through viper: environment first, config.yaml second,
// defaults last.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("environment", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("transcription_base_url", "https://api.openai.com/v1")
	v.SetDefault("transcription_model", "whisper-1")
	v.SetDefault("transcription_language", "ru")
	v.SetDefault("transcription_timeout", "120s")
	v.SetDefault("archive_backend", BackendDrive)
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("max_upload_mb", 100)
	v.SetDefault("pipeline_concurrent_decode", true)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:        v.GetString("port"),
		Environment: v.GetString("environment"),
		LogLevel:    v.GetString("log_level"),
		Transcription: Transcription{
			APIKey:   v.GetString("openai_api_key"),
			BaseURL:  v.GetString("transcription_base_url"),
			Model:    v.GetString("transcription_model"),
			Language: v.GetString("transcription_language"),
			Timeout:  v.GetDuration("transcription_timeout"),
		},
		Google: Google{
			AuthMode:           strings.ToLower(strings.TrimSpace(v.GetString("google_auth_mode"))),
			ServiceAccountJSON: v.GetString("google_service_account_json"),
			ServiceAccountFile: v.GetString("google_service_account_file"),
			ClientID:           v.GetString("google_client_id"),
			ClientSecret:       v.GetString("google_client_secret"),
			RefreshToken:       v.GetString("google_refresh_token"),
			RedirectURL:        v.GetString("google_redirect_url"),
		},
		Archive: Archive{
			Backend:            strings.ToLower(strings.TrimSpace(v.GetString("archive_backend"))),
			AudioFolderID:      v.GetString("drive_audio_folder_id"),
			TranscriptFolderID: v.GetString("drive_text_folder_id"),
			Bucket:             v.GetString("gcs_bucket"),
		},
		CRM: CRM{
			Domain:      v.GetString("amocrm_domain"),
			AccessToken: v.GetString("amocrm_access_token"),
		},
		ScratchDir:       v.GetString("scratch_dir"),
		FFmpegPath:       v.GetString("ffmpeg_path"),
		MaxUploadMB:      v.GetInt64("max_upload_mb"),
		ConcurrentDecode: v.GetBool("pipeline_concurrent_decode"),
	}

	if cfg.Google.RedirectURL == "" {
		cfg.Google.RedirectURL = fmt.Sprintf("http://localhost:%s/auth-google/callback", cfg.Port)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Archive.Backend {
	case BackendDrive, BackendGCS:
	default:
		return fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
	switch archive.AuthMode(cfg.Google.AuthMode) {
	case "", archive.ModeServiceAccount, archive.ModeRefreshToken:
	default:
		return fmt.Errorf("unknown google auth mode %q", cfg.Google.AuthMode)
	}
	if cfg.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", cfg.MaxUploadMB)
	}
	if cfg.Transcription.Timeout <= 0 {
		return fmt.Errorf("transcription timeout must be positive, got %s", cfg.Transcription.Timeout)
	}
	return nil
}

// MaxUploadBytes is the multipart body limit for /upload.
func (c *Config) MaxUploadBytes() int64 { return c.MaxUploadMB << 20 }

// CredentialInput gathers the raw Google credential settings. A service
// account file, when set, is read here.
func (c *Config) CredentialInput() (archive.CredentialInput, error) {
	in := archive.CredentialInput{
		Mode:         c.Google.AuthMode,
		ClientID:     c.Google.ClientID,
		ClientSecret: c.Google.ClientSecret,
		RefreshToken: c.Google.RefreshToken,
	}
	switch {
	case c.Google.ServiceAccountJSON != "":
		in.ServiceAccountJSON = []byte(c.Google.ServiceAccountJSON)
	case c.Google.ServiceAccountFile != "":
		b, err := os.ReadFile(c.Google.ServiceAccountFile)
		if err != nil {
			return in, fmt.Errorf("read service account file: %w", err)
		}
		in.ServiceAccountJSON = b
	}
	return in, nil
}

func (c *Config) hasServiceAccount() bool {
	return c.Google.ServiceAccountJSON != "" || c.Google.ServiceAccountFile != ""
}

// OAuthFlowEnabled reports whether /auth-google should be served. The flow
// is what mints the refresh token, so it is available before one is set.
func (c *Config) OAuthFlowEnabled() bool {
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return false
	}
	switch archive.AuthMode(c.Google.AuthMode) {
	case archive.ModeServiceAccount:
		return false
	case archive.ModeRefreshToken:
		return true
	default:
		return !c.hasServiceAccount() || c.Google.RefreshToken != ""
	}
}

// Warnings lists settings that are missing. The service starts anyway; the
// affected stage fails when first used.
func (c *Config) Warnings() []string {
	var out []string
	if c.Transcription.APIKey == "" {
		out = append(out, "OPENAI_API_KEY is not set; transcription will fail")
	}
	if c.CRM.Domain == "" || c.CRM.AccessToken == "" {
		out = append(out, "AMOCRM_DOMAIN or AMOCRM_ACCESS_TOKEN is not set; CRM notes will fail")
	}
	if !c.hasServiceAccount() && c.Google.RefreshToken == "" {
		msg := "no Google credentials configured; archiving will fail"
		if c.OAuthFlowEnabled() {
			msg += " (visit /auth-google to obtain a refresh token)"
		}
		out = append(out, msg)
	}
	if c.Archive.Backend == BackendGCS && c.Archive.Bucket == "" {
		out = append(out, "GCS_BUCKET is not set; archiving will fail")
	}
	if c.Archive.Backend == BackendDrive && (c.Archive.AudioFolderID == "" || c.Archive.TranscriptFolderID == "") {
		out = append(out, "DRIVE_AUDIO_FOLDER_ID or DRIVE_TEXT_FOLDER_ID is not set; files will land in the Drive root")
	}
	return out
}
