package gormstore

import (
	"context"
	"errors"
	"testing"

	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/store"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return New(gdb), mock
}

const decrementSQL = "UPDATE `inventories` SET `quantity`=quantity - \\? WHERE variant_id = \\? AND quantity - reserved >= \\?"

func TestDecrementStockSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(decrementSQL).
		WithArgs(int64(2), "v1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.DecrementStock(context.Background(), "v1", 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockInsufficient(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(decrementSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `inventories` WHERE variant_id = \\?").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

	err := s.DecrementStock(context.Background(), "v1", 9)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockMissingVariant(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(decrementSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `inventories`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))

	err := s.DecrementStock(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusStale(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `orders` SET `status`=\\?.* WHERE .*id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `orders` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

	err := s.UpdateOrderStatus(context.Background(), "o1", ordermodel.StatusPending, ordermodel.StatusPaid)
	assert.ErrorIs(t, err, store.ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInventoryLocksRowBeforeWrite(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `inventories` WHERE variant_id = \\? .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"variant_id", "quantity", "reserved", "reorder_threshold"}).
			AddRow("v1", 3, 0, 2))
	mock.ExpectExec("UPDATE `inventories` SET `quantity`=\\?,`reserved`=\\?,`reorder_threshold`=\\?,`updated_at`=\\? WHERE .*`variant_id` = \\?").
		WithArgs(int64(3), int64(1), int64(2), sqlmock.AnyArg(), "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inv, err := s.UpdateInventory(context.Background(), "v1", func(inv *productmodel.Inventory) error {
		inv.Reserved = 1
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, inv.Quantity)
	assert.Equal(t, 1, inv.Reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInventoryRollsBackOnRejectedPatch(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `inventories` WHERE variant_id = \\? .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"variant_id", "quantity", "reserved", "reorder_threshold"}).
			AddRow("v1", 1, 0, 0))
	mock.ExpectRollback()

	_, err := s.UpdateInventory(context.Background(), "v1", func(inv *productmodel.Inventory) error {
		inv.Reserved = 4
		return inv.Validate()
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearCartReturnsRowsAffected(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM `cart_items` WHERE cart_id = \\?").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := s.ClearCart(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePaymentStale(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `payments` SET .*`status`=\\?.* WHERE status = \\? AND .*`id` = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `payments` WHERE id = \\?").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

	p := &ordermodel.Payment{ID: "p1", Status: ordermodel.PaymentSucceeded, ProviderPaymentID: "prov-1"}
	err := s.UpdatePayment(context.Background(), p, ordermodel.PaymentPending)
	assert.ErrorIs(t, err, store.ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO `accounts`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'a@example.com' for key 'email'"})

	err := s.CreateAccount(context.Background(), &usermodel.Account{Email: "a@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `orders` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(decrementSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.Transaction(context.Background(), func(tx store.Store) error {
		if err := tx.DecrementStock(context.Background(), "v1", 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommits(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `inventories` SET `quantity`=quantity \\+ \\?").
		WithArgs(int64(3), "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Transaction(context.Background(), func(tx store.Store) error {
		return tx.IncrementStock(context.Background(), "v1", 3)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModelsListIsExplicit(t *testing.T) {
	models := Models()
	assert.Len(t, models, 18)
	assert.Contains(t, models, &ordermodel.Notification{})
}
