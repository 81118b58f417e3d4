package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the YAML written by InitConfig/InitConfigToPath. It is
// hand-authored (not generated from Config via yaml.Marshal) so it can carry
// explanatory comments for every section.
const configTemplate = `# s3block Configuration File
#
# Environment variables override any value here: S3BLOCK_<SECTION>_<KEY>,
# e.g. S3BLOCK_HTTPIO_BUCKET=my-bucket.

logging:
  level: "INFO"
  format: "text"
  output: "stdout"

telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0

metrics:
  enabled: false
  port: 9090

# httpio is the S3-compatible object store backing every block.
httpio:
  region: "us-east-1"
  bucket: ""
  prefix: ""
  access_key: ""
  secret_key: ""
  compress: false
  encrypt: false
  password: ""
  keyLength: 32
  no_verify: false
  max_retries: 5
  max_retry_pause: 30s
  timeout: 30s
  force_path_style: false

blockcache:
  block_size: 4Ki
  num_blocks: 0
  read_only: false
  cache_size: 16
  num_threads: 1
  write_delay: 100ms
  max_dirty: 16
  read_ahead: 4
  read_ahead_trigger: 2
  synchronous: false
  no_verify: false
  recover_dirty_blocks: false

zerocache:
  enabled: true
  max_tracked_blocks: 67108864

ecprotect:
  enabled: true
  min_write_delay: 5s
  md5_cache_size: 1024
  reap_interval: 1s

admin:
  enabled: false
  listen_addr: ":8090"
  jwt_secret: "%s"
  token_ttl: 24h
  bootstrap_username: "admin"

shutdown_timeout: 30s
`

// InitConfig writes a new configuration file to the default config path,
// returning the path written. It fails if a config file already exists
// there unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a new configuration file to the given path. It
// fails if a file already exists there unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	secret, err := generateJWTSecret()
	if err != nil {
		return fmt.Errorf("failed to generate admin jwt secret: %w", err)
	}

	content := fmt.Sprintf(configTemplate, secret)
	// 0600: the generated file embeds a freshly minted JWT secret.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateJWTSecret returns a cryptographically random, URL-safe base64
// string suitable as the admin API's JWT signing secret.
func generateJWTSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
