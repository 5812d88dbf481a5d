package stream

import "time"

// idlePollInterval is how often TransferStateToStreamTask polls a
// sibling's idleness (spec section 4.3.7).
const idlePollInterval = 100 * time.Millisecond

// TransferStateToStreamTask hands control from a finished fill-history
// Source task to its live sibling (spec section 4.3.7).
func TransferStateToStreamTask(t *Task) error {
	sibling := t.Sibling
	if sibling == nil {
		return ErrNoSiblingTask
	}

	if sibling.Level == LevelSource {
		if sibling.Status() != StatusHalt {
			return ErrSiblingNotHalted
		}
	} else if !sibling.CASStatus(StatusNormal, StatusHalt) {
		return ErrSiblingNotHalted
	}

	for !sibling.isIdle() {
		time.Sleep(idlePollInterval)
	}

	if sibling.DataRangeStart > t.DataRangeStart {
		sibling.DataRangeStart = t.DataRangeStart
	}
	if err := sibling.Op.ResetStreamInfoTimeWindow(); err != nil {
		return err
	}

	if err := t.Op.ReleaseState(); err != nil {
		return err
	}
	if err := sibling.Op.ReloadState(); err != nil {
		return err
	}

	sibling.SetStatus(StatusNormal)
	if sibling.Reschedule != nil {
		sibling.Reschedule(sibling)
	}
	return nil
}
