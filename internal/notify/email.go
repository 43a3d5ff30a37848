package notify

import (
	"fmt"
	"sync"

	"github.com/pi2rec/vadrec/internal/util"
)

// DeliveryFailureNotifier emails the operator when a recording could not be
// delivered. The Graph client is built lazily on first use and cached.
type DeliveryFailureNotifier struct {
	cfg      GraphConfig
	hostname string

	mu     sync.Mutex
	client *GraphClient
}

// NewDeliveryFailureNotifier returns a notifier for the given configuration.
// hostname identifies the recorder in the alert subject.
func NewDeliveryFailureNotifier(cfg GraphConfig, hostname string) *DeliveryFailureNotifier {
	return &DeliveryFailureNotifier{cfg: cfg, hostname: hostname}
}

// Notify sends a delivery-failure alert in the background. A misconfigured
// or unreachable mail setup is logged, never propagated.
func (n *DeliveryFailureNotifier) Notify(filename, category, errMsg string) {
	if !n.cfg.IsConfigured() {
		return
	}
	go util.LogNotifyResult(func() error {
		return n.send(filename, category, errMsg)
	}, "email")
}

func (n *DeliveryFailureNotifier) send(filename, category, errMsg string) error {
	client, err := n.getOrCreateClient()
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	subject := "[ALERT] Recording Delivery Failed - " + n.hostname
	body := fmt.Sprintf(
		"A recording could not be delivered at %s.\n\n"+
			"Recorder: %s\n"+
			"File: %s\n"+
			"Failure: %s\n"+
			"Error: %s\n\n"+
			"The recording is still available on the recorder's local storage.",
		util.HumanTime(), n.hostname, filename, category, errMsg,
	)

	recipients := ParseRecipients(n.cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	return util.WrapError("send email via Graph", client.SendMail(recipients, subject, body))
}

func (n *DeliveryFailureNotifier) getOrCreateClient() (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client != nil {
		return n.client, nil
	}
	client, err := NewGraphClient(&n.cfg)
	if err != nil {
		return nil, err
	}
	n.client = client
	return client, nil
}
