// Package cmd hosts the watcher's cobra commands.
//
// Architecture overview:
//   - Trigger: `watcher serve` exposes POST / through internal/api. Cloud Scheduler (or any cron) calls it; an
//     optional in-process robfig/cron schedule can call the same pipeline when schedule.cron is set.
//   - Pipeline: internal/watcher fetches the target page (colly, or chromedp when fetch.headless is on), extracts the
//     text of <main> with goquery, hashes it with SHA-256 and compares the digest with the stored one.
//   - Change handling: a changed page is summarized by Gemini, the new hash is written with a generation precondition
//     and only then is the summary posted to the chat webhook and, when configured, published to Pub/Sub.
//   - Configuration & plumbing: Viper reads config from YAML and env (WATCHER_* plus the GCS_BUCKET_NAME,
//     CHAT_WEBHOOK_URL, GEMINI_API_KEY and PORT names used by the deployment); zap provides structured logging;
//     Prometheus metrics are exported on /metrics.
//
// Quick checklist:
//   - Configure env vars: GEMINI_API_KEY, CHAT_WEBHOOK_URL, GCS_BUCKET_NAME, optionally WATCHER_TARGET_URL.
//   - Run locally: go run . check --config config.yaml (WATCHER_STATE_BACKEND=local keeps state on disk).
//   - Cloud Run: go run . serve; the container listens on PORT and drains on SIGTERM.
package cmd
