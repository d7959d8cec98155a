package rollback

import (
	"bytes"
	"fmt"
	"text/template"
)

// ServiceTarget is what the Executor must know about a service to generate
// its rollback plan: the port and URL prefix its /health endpoint listens
// on, supplied at construction as a service -> ServiceTarget mapping
// (spec.md §4.3).
type ServiceTarget struct {
	Port   int
	Prefix string
}

// PlanParams parameterizes the generated shell plan.
type PlanParams struct {
	ReleaseID       int64
	ServiceName     string
	TargetTag       string
	Port            int
	Prefix          string
	CallbackBaseURL string
}

// planTemplate renders the self-contained, idempotent rollback shell plan
// grounded line-for-line on the original's _generate_rollback_command: PATCH
// to rollback, git fetch --tags --force, checkout, branch prune, env
// sourcing, docker compose rebuild, health-probe retry loop (15s settle, 5
// attempts, 20s interval), tail -100 container logs on failure, final PATCH
// to rollback_done or rollback_failed.
var planTemplate = template.Must(template.New("rollback").Parse(`#!/usr/bin/env bash
# Rollback of {{.ServiceName}} to {{.TargetTag}}, release {{.ReleaseID}}.
set -u

curl -s -X PATCH \
  -H "Content-Type: application/json" \
  -d '{"release_id": {{.ReleaseID}}, "status": "rollback"}' \
  "{{.CallbackBaseURL}}/release" || true

set -e

mkdir -p /var/log/deployments/rollback/{{.ServiceName}}
LOG_FILE="/var/log/deployments/rollback/{{.ServiceName}}/{{.TargetTag}}-rollback.log"

log_message() {
    local message="$1"
    echo "$(date '+%Y-%m-%d %H:%M:%S') - $message" | tee -a "$LOG_FILE"
}

patch_failed() {
    curl -s -X PATCH \
      -H "Content-Type: application/json" \
      -d '{"release_id": {{.ReleaseID}}, "status": "rollback_failed"}' \
      "{{.CallbackBaseURL}}/release" || true
}

log_message "starting rollback of {{.ServiceName}} to {{.TargetTag}}"

cd "services/{{.ServiceName}}"

if git tag -l | grep -q "^{{.TargetTag}}$"; then
    git tag -d "{{.TargetTag}}" 2>&1 | tee -a "$LOG_FILE"
fi

log_message "fetching tags"
git fetch origin --tags --force 2>&1 | tee -a "$LOG_FILE"

if ! git tag -l | grep -q "^{{.TargetTag}}$"; then
    log_message "tag {{.TargetTag}} not found after fetch"
    patch_failed
    exit 1
fi

log_message "checking out {{.TargetTag}}"
git checkout "{{.TargetTag}}" 2>&1 | tee -a "$LOG_FILE"

git for-each-ref --format='%(refname:short)' refs/heads | grep -v -E '^(main|master)$' | xargs -r git branch -D 2>&1 | tee -a "$LOG_FILE" || true
git remote prune origin 2>&1 | tee -a "$LOG_FILE" || true

cd ../../deploy

export $(cat env/.env.app env/.env.db env/.env.monitoring 2>/dev/null | xargs) || true

log_message "rebuilding {{.ServiceName}} container"
docker compose -f ./docker-compose/app.yaml up -d --build {{.ServiceName}} 2>&1 | tee -a "$LOG_FILE"

check_health() {
    if curl -f -s -o /dev/null -w "%{http_code}" "http://localhost:{{.Port}}{{.Prefix}}/health" | grep -q "200"; then
        return 0
    fi
    return 1
}

MAX_ATTEMPTS=5
ATTEMPT=1
SUCCESS=false

log_message "waiting for {{.ServiceName}} to come up"
sleep 15

while [ $ATTEMPT -le $MAX_ATTEMPTS ]; do
    log_message "health check attempt $ATTEMPT of $MAX_ATTEMPTS"
    if check_health; then
        SUCCESS=true
        break
    fi
    sleep 20
    ATTEMPT=$((ATTEMPT + 1))
done

if [ "$SUCCESS" = false ]; then
    log_message "health check failed after $MAX_ATTEMPTS attempts"
    docker logs --tail 100 {{.ServiceName}} 2>&1 | tee -a "$LOG_FILE" || true
    patch_failed
    exit 1
fi

curl -s -X PATCH \
  -H "Content-Type: application/json" \
  -d '{"release_id": {{.ReleaseID}}, "status": "rollback_done"}' \
  "{{.CallbackBaseURL}}/release" || true

log_message "rollback of {{.ServiceName}} to {{.TargetTag}} complete"
`))

// RenderPlan materializes the shell plan for one rollback.
func RenderPlan(p PlanParams) (string, error) {
	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("rollback: render plan: %w", err)
	}
	return buf.String(), nil
}

// ScriptPath builds the remote path for an uploaded plan. The filename
// embeds service, tag, and a wall-clock timestamp so concurrent rollbacks of
// different services/tags do not collide.
func ScriptPath(serviceName, targetTag string, timestamp int64) string {
	return fmt.Sprintf("/tmp/rollback_%s_%s_%d.sh", serviceName, targetTag, timestamp)
}
