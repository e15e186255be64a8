package ledger

import "chainledger/pkg/domain"

// BankBalance returns the pooled balance available to a character at the
// start of the chunk containing jumpID. Deposits accumulate per chunk; the
// running balance compounds by the interest rate each time a new chunk
// begins.
func BankBalance(chain *domain.Chain, jumpID domain.JumpID, characterID domain.CharacterID) (int, error) {
	if _, _, err := lookup(chain, jumpID, characterID); err != nil {
		return 0, err
	}
	bank := chain.Bank
	if !bank.Enabled {
		return 0, nil
	}
	target := chain.ChunkRoot(jumpID)
	balance, chunkTotal := 0, 0
	started := false
	for _, jid := range chain.JumpList {
		if chain.IsRoot(jid) {
			if started {
				balance = domain.FloorDiv((balance+chunkTotal)*(100+bank.InterestRate), 100)
				chunkTotal = 0
			}
			started = true
			if jid == target {
				return balance, nil
			}
		}
		j := chain.Jumps[jid]
		if j == nil || !j.HasCharacter(characterID) {
			continue
		}
		deposit := j.BankDeposits[characterID]
		if deposit > 0 {
			deposit = domain.FloorDiv(deposit*bank.DepositRatio, 100)
		}
		chunkTotal += deposit
		if bank.MaxDeposit > 0 && chunkTotal > bank.MaxDeposit {
			chunkTotal = bank.MaxDeposit
		}
	}
	return balance, nil
}
