package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-wallet-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0x52908400098527886e0f7030069857d2e4169ee7"

type fakeDynamo struct {
	getOut    *dynamodb.GetItemOutput
	queryOut  *dynamodb.QueryOutput
	updateOut *dynamodb.UpdateItemOutput
	err       error
	updateErr error

	gets     []*dynamodb.GetItemInput
	queries  []*dynamodb.QueryInput
	updates  []*dynamodb.UpdateItemInput
	transact []*dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.getOut, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.queryOut, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updateOut == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return f.updateOut, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transact = append(f.transact, in)
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func userItem(t *testing.T, u domain.User) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(u)
	require.NoError(t, err)
	return item
}

func TestUserRepo_Create_WritesUserAndGuard(t *testing.T) {
	f := &fakeDynamo{}
	repo := NewUserRepo(f, "users")
	exp := int64(1700000900)

	err := repo.Create(context.Background(), &domain.User{UserID: "u1", WalletID: testWallet, Nonce: "abc", ExpiryTime: &exp})
	require.NoError(t, err)
	require.Len(t, f.transact, 1)

	items := f.transact[0].TransactItems
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Put)
	require.NotNil(t, items[1].Put)
	assert.Equal(t, "attribute_not_exists(user_id)", aws.ToString(items[0].Put.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, items[0].Put.Item[attrUserID])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "abc"}, items[0].Put.Item[attrNonce])

	guard := items[1].Put
	assert.Equal(t, "attribute_not_exists(#pk) OR #exp < :now", aws.ToString(guard.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "wallet#" + testWallet}, guard.Item[attrUserID])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, guard.Item[attrOwnerUserID])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1700000900"}, guard.Item[attrExpiryTime])
}

func canceled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{Message: aws.String("canceled"), CancellationReasons: reasons}
}

func TestUserRepo_Create_FailedConditionIsConflict(t *testing.T) {
	f := &fakeDynamo{err: canceled("None", "ConditionalCheckFailed")}
	repo := NewUserRepo(f, "users")

	err := repo.Create(context.Background(), &domain.User{UserID: "u1", WalletID: testWallet})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserRepo_Create_OtherCancellationIsNotDomain(t *testing.T) {
	for _, code := range []string{"TransactionConflict", "ThrottlingError"} {
		t.Run(code, func(t *testing.T) {
			f := &fakeDynamo{err: canceled("None", code)}

			err := NewUserRepo(f, "users").Create(context.Background(), &domain.User{UserID: "u1", WalletID: testWallet})
			require.Error(t, err)
			assert.Nil(t, domain.Kind(err))
		})
	}
}

func TestUserRepo_Create_OtherErrorIsNotDomain(t *testing.T) {
	f := &fakeDynamo{err: errors.New("throttled")}
	repo := NewUserRepo(f, "users")

	err := repo.Create(context.Background(), &domain.User{UserID: "u1", WalletID: testWallet})
	require.Error(t, err)
	assert.Nil(t, domain.Kind(err))
}

func TestUserRepo_Get(t *testing.T) {
	f := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: userItem(t, domain.User{UserID: "u1", WalletID: testWallet, Nonce: "n1", Verified: true})}}
	repo := NewUserRepo(f, "users")

	u, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "n1", u.Nonce)
	assert.True(t, u.Verified)
	assert.True(t, aws.ToBool(f.gets[0].ConsistentRead))
}

func TestUserRepo_Get_Missing(t *testing.T) {
	repo := NewUserRepo(&fakeDynamo{getOut: &dynamodb.GetItemOutput{}}, "users")

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_GetByWalletID(t *testing.T) {
	item := userItem(t, domain.User{UserID: "u1", WalletID: testWallet})

	t.Run("single match", func(t *testing.T) {
		f := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
		u, err := NewUserRepo(f, "users").GetByWalletID(context.Background(), testWallet)
		require.NoError(t, err)
		assert.Equal(t, "u1", u.UserID)
		assert.Equal(t, indexWalletID, aws.ToString(f.queries[0].IndexName))
		assert.Equal(t, int32(2), aws.ToInt32(f.queries[0].Limit))
	})

	t.Run("no match", func(t *testing.T) {
		f := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
		_, err := NewUserRepo(f, "users").GetByWalletID(context.Background(), testWallet)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate wallet", func(t *testing.T) {
		f := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item, item}}}
		_, err := NewUserRepo(f, "users").GetByWalletID(context.Background(), testWallet)
		assert.ErrorIs(t, err, ErrIntegrity)
		assert.Nil(t, domain.Kind(err))
	})
}

func TestUserRepo_UpdateIfNonce(t *testing.T) {
	f := &fakeDynamo{updateOut: &dynamodb.UpdateItemOutput{
		Attributes: userItem(t, domain.User{UserID: "u1", WalletID: testWallet, Nonce: "n2"}),
	}}
	repo := NewUserRepo(f, "users")

	u, err := repo.UpdateIfNonce(context.Background(), "u1", "n1", map[string]interface{}{"nonce": "n2"})
	require.NoError(t, err)
	assert.Equal(t, "n2", u.Nonce)

	require.Len(t, f.updates, 1)
	in := f.updates[0]
	assert.Equal(t, "attribute_exists(#pk) AND #cn = :cn", aws.ToString(in.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "n1"}, in.ExpressionAttributeValues[":cn"])
	assert.Equal(t, types.ReturnValueAllNew, in.ReturnValues)
}

func TestUserRepo_UpdateIfNonce_LostRaceIsConflict(t *testing.T) {
	f := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{Message: aws.String("failed")}}
	repo := NewUserRepo(f, "users")

	_, err := repo.UpdateIfNonce(context.Background(), "u1", "n1", map[string]interface{}{"nonce": "n2"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserRepo_UpdateIfNonce_EmptyNonceRejected(t *testing.T) {
	f := &fakeDynamo{}
	_, err := NewUserRepo(f, "users").UpdateIfNonce(context.Background(), "u1", "", map[string]interface{}{"nonce": "n2"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.Empty(t, f.updates)
}

func TestUserRepo_Update_MissingUser(t *testing.T) {
	f := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{Message: aws.String("failed")}}

	_, err := NewUserRepo(f, "users").Update(context.Background(), "u1", map[string]interface{}{"verified": true})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_Update_RemovingExpiryRewritesGuardInSameTransaction(t *testing.T) {
	f := &fakeDynamo{getOut: &dynamodb.GetItemOutput{
		Item: userItem(t, domain.User{UserID: "u1", WalletID: testWallet, Verified: true}),
	}}
	repo := NewUserRepo(f, "users")
	repo.now = func() time.Time { return time.Unix(1700000000, 0) }

	u, err := repo.Update(context.Background(), "u1", map[string]interface{}{
		"verified":    true,
		"expiry_time": nil,
	})
	require.NoError(t, err)
	assert.True(t, u.Verified)
	assert.Empty(t, f.updates)
	require.Len(t, f.transact, 1)

	items := f.transact[0].TransactItems
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Update)
	assert.Equal(t, "SET #f1 = :v1 REMOVE #f0", aws.ToString(items[0].Update.UpdateExpression))
	assert.Equal(t, "attribute_exists(#pk)", aws.ToString(items[0].Update.ConditionExpression))

	guard := items[1].Put
	require.NotNil(t, guard)
	assert.Equal(t, "attribute_not_exists(#pk) OR #owner = :owner OR #exp < :now", aws.ToString(guard.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "wallet#" + testWallet}, guard.Item[attrUserID])
	assert.NotContains(t, guard.Item, attrExpiryTime)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1700000000"}, guard.ExpressionAttributeValues[":now"])
}
