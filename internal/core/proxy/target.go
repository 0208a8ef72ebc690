// Package proxy provides pure types and functions for the LLM completions proxy.
// This package has no I/O dependencies and is tested with values in/out.
package proxy

import (
	"net/url"
	"strings"
)

// StatusRunning is the RunPod desiredStatus of a pod that can take traffic.
const StatusRunning = "RUNNING"

// DefaultURLTemplate is the RunPod HTTP proxy address of port 8000 on a pod.
const DefaultURLTemplate = "https://{pod_id}-8000.proxy.runpod.net"

// Pod is a GPU pod serving an OpenAI-compatible completions API.
type Pod struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DesiredStatus string `json:"desired_status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// CanRoute returns true if the pod can accept traffic.
func (p Pod) CanRoute() bool {
	return p.DesiredStatus == StatusRunning && p.ID != ""
}

// RunningPods filters pods down to those that can accept traffic, keeping order.
func RunningPods(pods []Pod) []Pod {
	out := make([]Pod, 0, len(pods))
	for _, p := range pods {
		if p.DesiredStatus == StatusRunning {
			out = append(out, p)
		}
	}
	return out
}

// SelectTarget picks the pod to forward to. The first running pod wins.
func SelectTarget(pods []Pod) (Pod, error) {
	if len(pods) == 0 || pods[0].ID == "" {
		return Pod{}, NewNoServersError()
	}
	return pods[0], nil
}

// TargetURL expands the {pod_id} placeholder of template and appends path.
func TargetURL(template, podID, path string) (*url.URL, error) {
	if template == "" {
		template = DefaultURLTemplate
	}
	base := strings.ReplaceAll(template, "{pod_id}", podID)
	return url.Parse(strings.TrimRight(base, "/") + path)
}
