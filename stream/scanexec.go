package stream

import "github.com/tsvnode/vnode-core/queryop"

// scanExecBatchSize bounds how many blocks ScanExec accumulates before
// dispatching a batch downstream.
const scanExecBatchSize = 4096

// ScanExec is the Source-task history replay path (spec section 4.3.6).
func ScanExec(t *Task) error {
	for {
		var batch []*queryop.DataBlock
		finished := false

		for len(batch) < scanExecBatchSize {
			block, err := t.Op.ExecTask()
			if err != nil {
				return err
			}
			if block == nil {
				if t.Op.RecoverScanFinished() {
					finished = true
				} else {
					if err := t.Op.SetOpOpen(); err != nil {
						return err
					}
					if t.Status() == StatusPause {
						if len(batch) > 0 {
							if err := DumpResult(t, batch); err != nil {
								return err
							}
						}
						return nil
					}
				}
				break
			}
			batch = append(batch, block)
		}

		if len(batch) == 0 && finished {
			return nil
		}
		if len(batch) > 0 {
			if err := DumpResult(t, batch); err != nil {
				return err
			}
		}
		if finished {
			return nil
		}
	}
}
