// Package ledger реализует операции над балансом и долгом пользователя.
// Все функции чистые: изменяют только переданного пользователя и
// не обращаются к хранилищу, поэтому вызываться должны строго внутри
// транзакции, удерживающей блокировку пользователя.
package ledger

import "github.com/mmeshcher/bikerent-system/internal/model"

// Credit пополняет баланс пользователя на amount.
// Неположительная сумма отклоняется с model.ErrInvalidAmount.
func Credit(u *model.User, amount int64) error {
	if amount <= 0 {
		return model.ErrInvalidAmount
	}
	u.Balance += amount
	return nil
}

// DebitForUsage списывает cost с баланса пользователя.
// Недостающая часть переносится в долг: деньги не создаются и не исчезают,
// balance + debt меняется ровно на cost.
func DebitForUsage(u *model.User, cost int64) error {
	if cost < 0 {
		return model.ErrInvalidAmount
	}
	if u.Balance >= cost {
		u.Balance -= cost
		return nil
	}
	u.Debt += cost - u.Balance
	u.Balance = 0
	return nil
}
