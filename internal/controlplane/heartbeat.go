// Package controlplane implements the node's outbound control-plane
// adapter (spec.md §6's "control-plane surface (outbound from node)"):
// a Lease-based heartbeat/drain signal and a hand-registered gRPC
// service for DistributeModule/CreateMatch/FinishMatch/DeleteMatch.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"

	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/anvil-platform/simnode/internal/container"
	"github.com/anvil-platform/simnode/internal/errs"
)

// NodeStatus is returned by Heartbeat: `{nodeId, capacity, metrics}`
// (spec.md §6).
type NodeStatus struct {
	NodeID    string         `json:"nodeId"`
	Capacity  int            `json:"capacity"`
	Draining  bool           `json:"draining"`
	Metrics   map[string]int `json:"metrics"`
}

// leaseAnnotations is the JSON payload stashed in the Lease's
// annotations, the same technique the teacher's leader-election stack
// builds on (k8s.io/client-go/tools/leaderelection/resourcelock uses
// coordination/v1.Lease as its storage primitive); here it carries
// liveness/capacity state instead of leader identity.
type leaseAnnotations struct {
	Capacity int            `json:"capacity"`
	Draining bool           `json:"draining"`
	Metrics  map[string]int `json:"metrics"`
}

const leaseAnnotationKey = "simnode.anvil-platform.io/status"

// Heartbeater renews a Lease named simnode-<nodeID> on every Heartbeat
// call, embedding node capacity and load as a JSON annotation.
type Heartbeater struct {
	clientset *kubernetes.Clientset
	namespace string
	nodeID    string
	holderID  string
	leaseSecs int32

	containers *container.Manager
	capacity   int
}

// NewHeartbeater builds a Heartbeater for one node.
func NewHeartbeater(clientset *kubernetes.Clientset, namespace, nodeID string, leaseSeconds int32, containers *container.Manager, capacity int) *Heartbeater {
	return &Heartbeater{
		clientset:  clientset,
		namespace:  namespace,
		nodeID:     nodeID,
		holderID:   nodeID,
		leaseSecs:  leaseSeconds,
		containers: containers,
		capacity:   capacity,
	}
}

func (h *Heartbeater) leaseName() string {
	return "simnode-" + h.nodeID
}

// Heartbeat creates or renews this node's Lease, returning the status
// that was published.
func (h *Heartbeater) Heartbeat(ctx context.Context) (NodeStatus, error) {
	used := len(h.containers.List())
	metrics := map[string]int{"containersActive": used}

	leases := h.clientset.CoordinationV1().Leases(h.namespace)
	existing, err := leases.Get(ctx, h.leaseName(), metav1.GetOptions{})

	// Draining is sticky once set by Drain; a plain Heartbeat only
	// refreshes capacity and metrics.
	var draining bool
	if err == nil {
		if raw, ok := existing.Annotations[leaseAnnotationKey]; ok {
			var prev leaseAnnotations
			if jsonErr := json.Unmarshal([]byte(raw), &prev); jsonErr == nil {
				draining = prev.Draining
			}
		}
	}

	ann := leaseAnnotations{Capacity: h.capacity - used, Draining: draining, Metrics: metrics}
	raw, marshalErr := json.Marshal(ann)
	if marshalErr != nil {
		return NodeStatus{}, errs.Wrap(errs.Internal, "controlplane: marshaling lease annotation", marshalErr)
	}

	if apierrors.IsNotFound(err) {
		lease := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:        h.leaseName(),
				Namespace:   h.namespace,
				Annotations: map[string]string{leaseAnnotationKey: string(raw)},
			},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &h.holderID,
				LeaseDurationSeconds: &h.leaseSecs,
			},
		}
		if _, err := leases.Create(ctx, lease, metav1.CreateOptions{}); err != nil {
			return NodeStatus{}, errs.Wrap(errs.Internal, "controlplane: creating lease", err)
		}
	} else if err != nil {
		return NodeStatus{}, errs.Wrap(errs.Internal, "controlplane: getting lease", err)
	} else {
		existing.Annotations[leaseAnnotationKey] = string(raw)
		existing.Spec.HolderIdentity = &h.holderID
		existing.Spec.LeaseDurationSeconds = &h.leaseSecs
		if _, err := leases.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return NodeStatus{}, errs.Wrap(errs.Internal, "controlplane: renewing lease", err)
		}
	}

	return NodeStatus{NodeID: h.nodeID, Capacity: ann.Capacity, Draining: ann.Draining, Metrics: metrics}, nil
}

// Drain flips the Lease's annotation to draining=true; existing
// containers are left running, only new createMatch calls are expected
// to stop at the caller (the control plane, not this package, enforces
// that by reading Draining before scheduling).
func (h *Heartbeater) Drain(ctx context.Context) (bool, error) {
	leases := h.clientset.CoordinationV1().Leases(h.namespace)
	existing, err := leases.Get(ctx, h.leaseName(), metav1.GetOptions{})
	if err != nil {
		return false, errs.Wrap(errs.Internal, "controlplane: getting lease for drain", err)
	}

	var ann leaseAnnotations
	if raw, ok := existing.Annotations[leaseAnnotationKey]; ok {
		_ = json.Unmarshal([]byte(raw), &ann)
	}
	ann.Draining = true
	raw, err := json.Marshal(ann)
	if err != nil {
		return false, errs.Wrap(errs.Internal, "controlplane: marshaling drain annotation", err)
	}
	if existing.Annotations == nil {
		existing.Annotations = map[string]string{}
	}
	existing.Annotations[leaseAnnotationKey] = string(raw)
	if _, err := leases.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return false, errs.Wrap(errs.Internal, "controlplane: updating lease for drain", err)
	}
	return true, nil
}

func (h *Heartbeater) String() string {
	return fmt.Sprintf("heartbeater(node=%s, lease=%s)", h.nodeID, h.leaseName())
}
