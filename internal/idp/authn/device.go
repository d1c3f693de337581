package authn

import (
	"context"
	"errors"
	"slices"
	"strings"
)

var errNoNotifier = errors.New("authn: no device notifier configured")

// deviceNotifyInteractor pushes the transaction to the user's
// authentication device. The device answers through the other
// interactions of the same transaction.
type deviceNotifyInteractor struct {
	notifier DeviceNotifier
}

func (i *deviceNotifyInteractor) Method() string       { return MethodDevice }
func (i *deviceNotifyInteractor) Operation() Operation { return OperationChallenge }

func (i *deviceNotifyInteractor) Interact(ctx context.Context, req *Request) Response {
	if i.notifier == nil {
		return serverFailure(errNoNotifier)
	}
	txn := req.Transaction
	if !txn.User.Exists() {
		return clientError("invalid_request", "the transaction has no user yet")
	}

	device, ok := txn.User.FindDevice(txn.DeviceID)
	if txn.DeviceID == "" {
		device, ok = txn.User.PrimaryDevice()
	}
	if !ok {
		return clientError("device_not_found", "the user has no matching authentication device")
	}

	if err := i.notifier.NotifyDevice(ctx, device, txn); err != nil {
		return serverFailure(err)
	}
	return succeeded(nil, map[string]any{"device_id": device.ID})
}

// denyInteractor records the user's decision on the device. A
// denied_scopes param naming some, but not all, requested scopes approves
// the rest; anything else denies the whole request.
type denyInteractor struct{}

func (i *denyInteractor) Method() string       { return MethodDeny }
func (i *denyInteractor) Operation() Operation { return OperationDeny }

func (i *denyInteractor) Interact(_ context.Context, req *Request) Response {
	denied := denialOf(req.Params["denied_scopes"], req.Transaction.Context.Scopes)
	if len(denied) > 0 {
		return Response{
			Status:       StatusSuccess,
			User:         &req.Transaction.User,
			DeniedScopes: denied,
			Body:         map[string]any{"denied_scopes": denied},
		}
	}
	return succeeded(nil, map[string]any{"denied": true})
}

// denialOf returns the declined scopes when they leave at least one
// requested scope approved, and nil otherwise.
func denialOf(param string, requested []string) []string {
	if param == "" {
		return nil
	}
	var denied []string
	for _, s := range strings.Fields(param) {
		if slices.Contains(requested, s) && !slices.Contains(denied, s) {
			denied = append(denied, s)
		}
	}
	if len(denied) == 0 || len(denied) == len(requested) || slices.Contains(denied, "openid") {
		return nil
	}
	return denied
}

// partialApproval reports a deny response that approves part of the
// request. It is counted as a device success, not as a deny.
func partialApproval(resp Response) bool {
	return resp.Status == StatusSuccess && len(resp.DeniedScopes) > 0
}
