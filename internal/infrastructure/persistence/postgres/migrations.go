// Package postgres implements the PostgreSQL persistence layer of the points engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create the transaction ledger and ranking aggregates
-- Version: 001

-- The append-only ledger. Rows are never updated in place; a soft delete
-- only sets deleted_at/deleted_by, and reversals are new compensating rows.
CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL,
    tenant_id UUID NOT NULL,
    kind VARCHAR(20) NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    coins INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL,
    category VARCHAR(20) NOT NULL,
    awarded_by VARCHAR(100) NOT NULL,
    reference UUID,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMP WITH TIME ZONE,
    deleted_by VARCHAR(100),

    CONSTRAINT valid_kind CHECK (kind IN ('earned', 'deducted', 'bonus', 'redemption')),
    CONSTRAINT valid_category CHECK (category IN ('homework', 'attendance', 'behavior', 'achievement', 'referral', 'manual', 'redemption')),
    CONSTRAINT nonzero_delta CHECK (points <> 0 OR coins <> 0),
    CONSTRAINT reason_present CHECK (length(trim(reason)) > 0)
);

-- Replay and history queries walk a student's rows in append order.
CREATE INDEX IF NOT EXISTS idx_transactions_student ON transactions(student_id, tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_student_desc ON transactions(student_id, tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(student_id, tenant_id, category) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference) WHERE reference IS NOT NULL;

-- One aggregate row per (student, tenant). The version column backs the
-- optimistic concurrency loop; every successful write increments it.
CREATE TABLE IF NOT EXISTS ranking_aggregates (
    student_id UUID NOT NULL,
    tenant_id UUID NOT NULL,
    total_points INTEGER NOT NULL DEFAULT 0,
    available_coins INTEGER NOT NULL DEFAULT 0,
    spent_coins INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, tenant_id),
    CONSTRAINT coins_non_negative CHECK (available_coins >= 0),
    CONSTRAINT spent_non_negative CHECK (spent_coins >= 0)
);

-- Leaderboard reads order by points within a tenant.
CREATE INDEX IF NOT EXISTS idx_aggregates_tenant_points ON ranking_aggregates(tenant_id, total_points DESC, created_at);
`

const migration001Down = `
DROP TABLE IF EXISTS ranking_aggregates;
DROP TABLE IF EXISTS transactions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE APPROVALS & ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create the approval queue and achievement tables
-- Version: 002

-- Intercepted awards above the moderation threshold. The decision column
-- is CAS-guarded: UPDATE ... WHERE decision = 'pending' is the only way a
-- row leaves the pending state.
CREATE TABLE IF NOT EXISTS pending_approvals (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL,
    tenant_id UUID NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    coins INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL,
    category VARCHAR(20) NOT NULL,
    requested_by VARCHAR(100) NOT NULL,
    requested_by_role VARCHAR(20) NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    decision VARCHAR(20) NOT NULL DEFAULT 'pending',
    decided_by VARCHAR(100),
    decided_by_role VARCHAR(20),
    decision_note TEXT,
    transaction_id UUID,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    decided_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_decision CHECK (decision IN ('pending', 'approved', 'rejected'))
);

-- The review queue orders by priority, then age.
CREATE INDEX IF NOT EXISTS idx_approvals_queue ON pending_approvals(tenant_id, priority DESC, created_at) WHERE decision = 'pending';
CREATE INDEX IF NOT EXISTS idx_approvals_decided ON pending_approvals(tenant_id, decided_at DESC) WHERE decision <> 'pending';

-- Achievement catalog.
CREATE TABLE IF NOT EXISTS achievements (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    predicate_type VARCHAR(30) NOT NULL,
    predicate_category VARCHAR(20),
    predicate_threshold INTEGER NOT NULL,
    bonus_points INTEGER NOT NULL DEFAULT 0,
    bonus_coins INTEGER NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_predicate_type CHECK (predicate_type IN ('transaction_count', 'total_points', 'enrolled_referrals')),
    CONSTRAINT positive_threshold CHECK (predicate_threshold > 0)
);

CREATE INDEX IF NOT EXISTS idx_achievements_active ON achievements(tenant_id) WHERE active;

-- Unlock records. The unique constraint is the at-most-once gate for the
-- achievement engine: a second unlock attempt fails on conflict.
CREATE TABLE IF NOT EXISTS student_achievements (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL,
    tenant_id UUID NOT NULL,
    achievement_id UUID NOT NULL REFERENCES achievements(id),
    bonus_transaction_id UUID,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uniq_student_achievement UNIQUE (student_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_student_achievements ON student_achievements(student_id, tenant_id, unlocked_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS student_achievements;
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS pending_approvals;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE REWARDS & REFERRALS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create the reward catalog, redemptions, campaigns and referrals
-- Version: 003

CREATE TABLE IF NOT EXISTS rewards (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    coin_cost INTEGER NOT NULL,
    stock INTEGER NOT NULL DEFAULT -1,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_cost CHECK (coin_cost > 0),
    CONSTRAINT valid_stock CHECK (stock >= -1)
);

CREATE INDEX IF NOT EXISTS idx_rewards_active ON rewards(tenant_id, coin_cost) WHERE active;

CREATE TABLE IF NOT EXISTS redemptions (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL,
    tenant_id UUID NOT NULL,
    reward_id UUID NOT NULL REFERENCES rewards(id),
    coin_cost INTEGER NOT NULL,
    transaction_id UUID NOT NULL,
    status VARCHAR(30) NOT NULL DEFAULT 'pending_fulfillment',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_redemption_status CHECK (status IN ('pending_fulfillment', 'fulfilled', 'cancelled'))
);

CREATE INDEX IF NOT EXISTS idx_redemptions_student ON redemptions(student_id, tenant_id, created_at DESC);

-- Campaigns drive referral payouts within their window. Tiers are stored
-- inline as JSONB: ordered [{min_enrolled, bonus}] pairs.
CREATE TABLE IF NOT EXISTS campaigns (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL,
    name VARCHAR(100) NOT NULL,
    base_points INTEGER NOT NULL DEFAULT 0,
    multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    tiers JSONB NOT NULL DEFAULT '[]'::jsonb,
    starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ends_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_window CHECK (ends_at > starts_at),
    CONSTRAINT positive_multiplier CHECK (multiplier > 0)
);

CREATE INDEX IF NOT EXISTS idx_campaigns_window ON campaigns(tenant_id, starts_at, ends_at);

-- Referral funnel records. Status transitions are CAS-guarded:
-- UPDATE ... WHERE status = <previous> enforces the terminal-state rule.
CREATE TABLE IF NOT EXISTS referrals (
    id UUID PRIMARY KEY,
    referrer_id UUID NOT NULL,
    tenant_id UUID NOT NULL,
    prospect_name VARCHAR(100) NOT NULL,
    prospect_phone VARCHAR(30) NOT NULL DEFAULT '',
    prospect_email VARCHAR(100) NOT NULL DEFAULT '',
    campaign_id UUID,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    reward_base_points INTEGER,
    reward_multiplier DOUBLE PRECISION,
    reward_tier_bonus INTEGER,
    reward_enrolled_count INTEGER,
    reward_total INTEGER,
    transaction_id UUID,
    decline_reason TEXT,
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    contacted_at TIMESTAMP WITH TIME ZONE,
    resolved_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_referral_status CHECK (status IN ('pending', 'contacted', 'enrolled', 'declined', 'expired'))
);

CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id, tenant_id, submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_referrals_enrolled ON referrals(referrer_id, tenant_id) WHERE status = 'enrolled';
CREATE INDEX IF NOT EXISTS idx_referrals_open ON referrals(submitted_at) WHERE status IN ('pending', 'contacted');
`

const migration003Down = `
DROP TABLE IF EXISTS referrals;
DROP TABLE IF EXISTS campaigns;
DROP TABLE IF EXISTS redemptions;
DROP TABLE IF EXISTS rewards;
`
